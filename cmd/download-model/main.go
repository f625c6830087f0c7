// Command download-model pre-fetches a Whisper model into the model
// directory so the service does not download at cold start. Intended for
// image builds and operator provisioning.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/newrality/transcribe/pkg/models"
)

func main() {
	var (
		modelName  string
		modelDir   string
		noProgress bool
		retries    int
	)

	rootCmd := &cobra.Command{
		Use:   "download-model",
		Short: "Download and verify a Whisper model",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			model, err := models.Resolve(modelName)
			if err != nil {
				return err
			}

			dest := filepath.Join(modelDir, model.FileName)
			if _, err := os.Stat(dest); err == nil {
				fmt.Printf("model %q already present at %s\n", model.Name, dest)
				return nil
			}

			fmt.Printf("downloading model %q to %s\n", model.Name, dest)
			if err := downloadFile(ctx, model.URL, dest, model.SHA256, retries, noProgress); err != nil {
				return err
			}

			fmt.Printf("model %q downloaded and verified\n", model.Name)
			return nil
		},
	}

	rootCmd.Flags().StringVarP(&modelName, "model", "m", models.DefaultModel, "model name ("+fmt.Sprint(models.Names())+")")
	rootCmd.Flags().StringVarP(&modelDir, "dir", "d", "/models/whisper", "destination directory")
	rootCmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	rootCmd.Flags().IntVar(&retries, "retries", 3, "download attempts before giving up")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func downloadFile(ctx context.Context, url, dest, expectedSHA256 string, retries int, noProgress bool) error {
	if retries <= 0 {
		retries = 1
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	client := &http.Client{Timeout: 30 * time.Minute}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if attempt > 1 {
			fmt.Fprintf(os.Stderr, "retrying download (attempt %d/%d)\n", attempt, retries)
			time.Sleep(time.Duration(attempt) * 300 * time.Millisecond)
		}

		lastErr = downloadOnce(ctx, client, url, dest, expectedSHA256, noProgress)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func downloadOnce(ctx context.Context, client *http.Client, url, dest, expectedSHA256 string, noProgress bool) error {
	tempPath := dest + ".part"
	_ = os.Remove(tempPath)

	outFile, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	success := false
	defer func() {
		_ = outFile.Close()
		if !success {
			_ = os.Remove(tempPath)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	hash := sha256.New()
	writer := io.MultiWriter(outFile, hash)

	var bar *progressbar.ProgressBar
	if shouldRenderProgress(noProgress, resp.ContentLength) {
		bar = progressbar.NewOptions64(
			resp.ContentLength,
			progressbar.OptionSetDescription("downloading"),
			progressbar.OptionSetWidth(20),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionClearOnFinish(),
		)
		writer = io.MultiWriter(outFile, hash, bar)
	}

	if _, err := io.Copy(writer, resp.Body); err != nil {
		return fmt.Errorf("download body: %w", err)
	}

	if bar != nil {
		_ = bar.Finish()
	}

	if err := outFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}

	actual := hex.EncodeToString(hash.Sum(nil))
	if expectedSHA256 != "" && actual != expectedSHA256 {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expectedSHA256, actual)
	}

	if err := outFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tempPath, dest); err != nil {
		return fmt.Errorf("move temp file into destination: %w", err)
	}

	success = true
	return nil
}

func shouldRenderProgress(noProgress bool, contentLength int64) bool {
	if noProgress || contentLength <= 0 {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
