package elevenlabs

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2023lic14/momentmcp/internal/model"
)

// writeArtifact persists audio bytes under OutputDir with a
// collision-resistant name: kind + UTC timestamp + random suffix.
func (c *Client) writeArtifact(kind, ext, mimeType string, audio []byte) (*model.AudioArtifact, error) {
	outputDir := strings.TrimSpace(c.OutputDir)
	if outputDir == "" {
		outputDir = "output"
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", outputDir, err)
	}

	name := fmt.Sprintf("%s_%s_%s%s",
		kind,
		time.Now().UTC().Format("20060102T150405"),
		strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		ext,
	)
	path := filepath.Join(outputDir, name)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return nil, fmt.Errorf("write artifact %s: %w", path, err)
	}

	return &model.AudioArtifact{
		Path:      path,
		SizeBytes: int64(len(audio)),
		MimeType:  mimeType,
	}, nil
}

// recordArtifact hands the artifact to the optional sink. Sink failures are
// logged and otherwise ignored.
func (c *Client) recordArtifact(ctx context.Context, tool string, artifact *model.AudioArtifact, modelID, prompt string) {
	if c.Sink == nil || artifact == nil {
		return
	}
	err := c.Sink.Record(ctx, model.Artifact{
		Tool:        tool,
		Path:        artifact.Path,
		SizeBytes:   artifact.SizeBytes,
		MimeType:    artifact.MimeType,
		ModelID:     modelID,
		Prompt:      prompt,
		CreatedUnix: time.Now().Unix(),
	})
	if err != nil {
		log.Printf("artifact sink record failed for %s: %v", artifact.Path, err)
	}
}
