package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-rag-backend/internal/app"
	"github.com/tbourn/go-rag-backend/internal/services"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Upload local files for a user",
	Long: `Runs each file through the same pipeline as the upload endpoint. Files
are processed in parallel; a failure does not stop the others.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var (
	ingestUser     string
	ingestParallel int
)

func init() {
	ingestCmd.Flags().StringVarP(&ingestUser, "user", "u", "", "Owner user id")
	ingestCmd.Flags().IntVarP(&ingestParallel, "parallel", "p", 2, "Files processed at once")
	_ = ingestCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := app.Open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := ingestFiles(cmd.Context(), a.Ingestion, ingestUser, args, ingestParallel)
	for i, res := range results {
		if res != nil {
			cmd.Printf("  %s  %s (%d chunks)\n", res.DocumentID, res.Filename, res.ChunkCount)
		} else {
			cmd.Printf("  failed      %s\n", args[i])
		}
	}
	return err
}

// ingestFiles uploads paths for userID with at most parallel uploads in
// flight. results[i] is nil when paths[i] failed; the failures are joined.
func ingestFiles(ctx context.Context, svc *services.IngestionService, userID string, paths []string, parallel int) ([]*services.UploadResult, error) {
	if parallel < 1 {
		parallel = 1
	}
	results := make([]*services.UploadResult, len(paths))
	errs := make([]error, len(paths))

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, p := range paths {
		g.Go(func() error {
			data, err := os.ReadFile(p)
			if err != nil {
				errs[i] = err
				return nil
			}
			res, err := svc.Upload(ctx, userID, filepath.Base(p), data)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", p, err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}
