package main

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/twpayne/go-kml/v3"
)

// Path simplification tolerance in degrees (roughly 1 m)
const trackEpsilon = 0.00001

// ExportKML writes the retained fixes as a Fixes folder of points plus a simplified
// Track line. It fails when there is nothing to export.
func (t *Track) ExportKML(filename, title string) error {
	fixes := t.Fixes()
	if len(fixes) == 0 {
		return fmt.Errorf("no GPS fixes to export")
	}

	var points []kml.Element
	for i, f := range fixes {
		points = append(points, kml.Placemark(
			kml.Name(fmt.Sprintf("fix-%d", i+1)),
			kml.Description(describeFix(f)),
			kml.Point(
				kml.Coordinates(fixCoordinate(f)),
			),
		))
	}

	docElements := []kml.Element{
		kml.Name(fmt.Sprintf("%s - %s", title, time.Now().Format("2006-01-02 15:04:05"))),
	}

	pointsFolder := []kml.Element{kml.Name("Fixes")}
	pointsFolder = append(pointsFolder, points...)
	docElements = append(docElements, kml.Folder(pointsFolder...))

	// A path needs at least two points
	if len(fixes) >= 2 {
		path := smoothPath(fixes)
		coords := make([]kml.Coordinate, len(path))
		for i, f := range path {
			coords[i] = fixCoordinate(f)
		}
		docElements = append(docElements, kml.Placemark(
			kml.Name("Track"),
			kml.Description(fmt.Sprintf("%d fixes, %d after simplification", len(fixes), len(path))),
			kml.LineString(
				kml.Coordinates(coords...),
			),
		))
	}

	doc := kml.KML(
		kml.Document(docElements...),
	)

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := doc.WriteIndent(file, "", "  "); err != nil {
		return fmt.Errorf("failed to write KML: %w", err)
	}
	return nil
}

func fixCoordinate(f Fix) kml.Coordinate {
	return kml.Coordinate{Lon: f.Longitude, Lat: f.Latitude, Alt: f.Elevation}
}

func describeFix(f Fix) string {
	return fmt.Sprintf("Time: %s\nQuality: %d\nSatellites: %d\nHDOP: %.1f",
		f.Time.Format(time.RFC3339), f.Quality, f.Satellites, f.HDOP)
}

// smoothPath drops redundant points from a track using Douglas-Peucker
func smoothPath(points []Fix) []Fix {
	if len(points) <= 2 {
		return points
	}
	return douglasPeucker(points, trackEpsilon)
}

// douglasPeucker keeps the point farthest from the start-end segment when it is
// beyond epsilon, and recurses on both halves
func douglasPeucker(points []Fix, epsilon float64) []Fix {
	if len(points) <= 2 {
		return points
	}

	maxDist := 0.0
	index := 0
	end := len(points) - 1
	for i := 1; i < end; i++ {
		dist := perpendicularDistance(points[i], points[0], points[end])
		if dist > maxDist {
			maxDist = dist
			index = i
		}
	}

	if maxDist <= epsilon {
		return []Fix{points[0], points[end]}
	}

	left := douglasPeucker(points[:index+1], epsilon)
	right := douglasPeucker(points[index:], epsilon)

	// index point appears in both halves
	result := make([]Fix, 0, len(left)+len(right)-1)
	result = append(result, left[:len(left)-1]...)
	result = append(result, right...)
	return result
}

// perpendicularDistance from point to the line through lineStart and lineEnd, in degrees
func perpendicularDistance(point, lineStart, lineEnd Fix) float64 {
	dx := lineEnd.Longitude - lineStart.Longitude
	dy := lineEnd.Latitude - lineStart.Latitude

	if dx == 0 && dy == 0 {
		return math.Hypot(point.Longitude-lineStart.Longitude, point.Latitude-lineStart.Latitude)
	}

	num := math.Abs(dy*point.Longitude - dx*point.Latitude + lineEnd.Longitude*lineStart.Latitude - lineEnd.Latitude*lineStart.Longitude)
	return num / math.Hypot(dx, dy)
}
