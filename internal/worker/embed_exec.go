package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wembed/benchcoord/internal/repos"
	"github.com/wembed/benchcoord/internal/utils"
)

// NewExecEmbedFunc returns an EmbedFunc that shells out to the external
// embedding binary. The binary reads the graph edge list and writes the
// position log; this side only names the files, checks the output exists,
// checksums it, and extracts the iteration count from the log.
func NewExecEmbedFunc(binaryPath string) EmbedFunc {
	return func(ctx context.Context, job repos.ClaimedJob, dataDirectory string) (*EmbedOutput, error) {
		outputName := fmt.Sprintf("graph-%d_dim-%d_dim-hint-%d_seed-%d.log",
			job.GraphID, job.EmbeddingDim, job.DimHint, job.Seed)
		relPath := filepath.ToSlash(filepath.Join("generated", "positions", outputName))
		outputPath := filepath.Join(dataDirectory, "generated", "positions", outputName)
		graphPath := filepath.Join(dataDirectory, filepath.FromSlash(job.GraphFilePath))

		if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
			return nil, err
		}

		cmd := exec.CommandContext(ctx, binaryPath,
			"-graph", graphPath,
			"-dim", strconv.Itoa(int(job.EmbeddingDim)),
			"-dim-hint", strconv.Itoa(int(job.DimHint)),
			"-max-iterations", strconv.Itoa(int(job.MaxIterations)),
			"-seed", strconv.Itoa(int(job.Seed)),
			"-out", outputPath,
		)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("embedding binary failed: %w", err)
		}

		if _, err := os.Stat(outputPath); err != nil {
			return nil, fmt.Errorf("embedding completed but output file was not created: %s", outputPath)
		}
		checksum, err := utils.FileChecksum(outputPath)
		if err != nil {
			return nil, err
		}
		actualIterations, err := parseActualIterations(outputPath)
		if err != nil {
			// The iteration count is informative, not essential.
			actualIterations = nil
		}
		return &EmbedOutput{
			FilePath:         relPath,
			Checksum:         checksum,
			ActualIterations: actualIterations,
		}, nil
	}
}

// parseActualIterations scans the position log for ITERATION markers and
// returns the highest one.
func parseActualIterations(path string) (*int32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var max int32
	found := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "ITERATION") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		n, convErr := strconv.ParseInt(fields[len(fields)-1], 10, 32)
		if convErr != nil {
			continue
		}
		found = true
		if int32(n) > max {
			max = int32(n)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no ITERATION markers in %s", path)
	}
	return &max, nil
}
