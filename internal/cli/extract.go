package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/sentimentiq/backend/internal/content"
	"github.com/sentimentiq/backend/internal/domain"
	"github.com/sentimentiq/backend/internal/extraction"
)

var (
	extractPageURL string
	extractTimeout time.Duration
)

var extractCmd = &cobra.Command{
	Use:   "extract [url|file]",
	Short: "Detect the product on a page",
	Long: `Runs the detection cascade (JSON-LD, Open Graph, page title) against a live
URL or a saved HTML file and prints the result as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVar(&extractPageURL, "url", "", "Page URL to assume for a saved HTML file")
	extractCmd.Flags().DurationVar(&extractTimeout, "timeout", 30*time.Second, "Fetch timeout for live URLs")
	rootCmd.AddCommand(extractCmd)
}

type extractOutput struct {
	URL      string                  `json:"url"`
	Strategy extraction.Strategy     `json:"strategy"`
	Product  *domain.ProductMetadata `json:"product"`
}

func runExtract(cmd *cobra.Command, args []string) error {
	page, err := loadPage(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	res := extraction.New().ExtractHTML(page.HTML, page.URL)
	return writeExtraction(cmd.OutOrStdout(), extractOutput{
		URL:      page.URL,
		Strategy: res.Strategy,
		Product:  res.Product,
	})
}

func loadPage(ctx context.Context, target string) (*domain.Page, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return content.NewHTTPSource(target, extractTimeout).Snapshot(ctx)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	pageURL := extractPageURL
	if pageURL == "" {
		abs, err := filepath.Abs(target)
		if err != nil {
			return nil, err
		}
		pageURL = "file://" + filepath.ToSlash(abs)
	}
	return &domain.Page{URL: pageURL, HTML: strings.NewReader(string(data))}, nil
}

func writeExtraction(w io.Writer, out extractOutput) error {
	data, err := sonic.ConfigStd.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
