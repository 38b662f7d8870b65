package worker

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ReadPositions loads the final coordinate block from a position log: the
// lines following the last ITERATION marker, one point per line. All points
// must share a dimensionality.
func ReadPositions(path string) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var points [][]float32
	dims := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "ITERATION") {
			points = points[:0]
			dims = 0
			continue
		}
		fields := strings.Fields(line)
		point := make([]float32, 0, len(fields))
		ok := true
		for _, field := range fields {
			v, convErr := strconv.ParseFloat(field, 32)
			if convErr != nil {
				ok = false
				break
			}
			point = append(point, float32(v))
		}
		if !ok || len(point) == 0 {
			// Header or trailer line, not a coordinate row.
			continue
		}
		if dims == 0 {
			dims = len(point)
		}
		if len(point) != dims {
			return nil, fmt.Errorf("ragged position row in %s: %d coords, expected %d", path, len(point), dims)
		}
		points = append(points, point)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("no positions in %s", path)
	}
	return points, nil
}
