package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"drisya/internal/batch"
	"drisya/internal/db"
	"drisya/internal/enhance"
	"drisya/internal/infra"
	"drisya/internal/infra/credentials"
	"drisya/internal/jobs"
	"drisya/internal/providers/image"
	"drisya/internal/templates"
)

// requestFlags are shared by every command that enhances images.
type requestFlags struct {
	prompt    string
	template  string
	quality   string
	size      string
	blurred   bool
	providers []string
	asJSON    bool
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.prompt, "prompt", "p", "", "Enhancement instruction")
	cmd.Flags().StringVarP(&f.template, "template", "t", "", "Background template ID (see `drisya templates`)")
	cmd.Flags().StringVarP(&f.quality, "quality", "q", "standard", "standard, high (hd) or ultra (4k)")
	cmd.Flags().StringVar(&f.size, "size", image.DefaultSize, "Output size, e.g. 1024x1024")
	cmd.Flags().BoolVar(&f.blurred, "blurred", false, "Ask the provider to sharpen an out-of-focus photo")
	cmd.Flags().StringSliceVar(&f.providers, "providers", nil, "Provider preference order, e.g. replicate,stability,openai")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Print results as JSON")
}

func (f *requestFlags) validate() error {
	if strings.TrimSpace(f.prompt) == "" && strings.TrimSpace(f.template) == "" {
		return errors.New("either --prompt or --template is required")
	}
	if f.template != "" {
		if _, ok := templates.Default().Get(f.template); !ok {
			return fmt.Errorf("unknown template %q", f.template)
		}
	}
	return nil
}

func (f *requestFlags) request(path string) enhance.Request {
	return enhance.Request{
		ID:         uuid.NewString(),
		SourcePath: path,
		Filename:   filepath.Base(path),
		Prompt:     f.prompt,
		TemplateID: f.template,
		Options: enhance.Options{
			Size:      f.size,
			Quality:   image.NormalizeQuality(f.quality),
			Blurred:   f.blurred,
			Providers: f.providers,
		},
	}
}

func newEnhanceCmd() *cobra.Command {
	var flags requestFlags
	cmd := &cobra.Command{
		Use:   "enhance <image>",
		Short: "Enhance a single image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.validate(); err != nil {
				return err
			}
			_, p, _, err := loadPipeline(cmd.Context())
			if err != nil {
				return err
			}
			res := p.Orchestrator.Enhance(cmd.Context(), flags.request(args[0]))
			out := cmd.OutOrStdout()
			if flags.asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				printResult(out, filepath.Base(args[0]), res)
			}
			if !res.OK() {
				return errors.New("enhancement failed")
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newBatchCmd() *cobra.Command {
	var (
		flags   requestFlags
		archive bool
	)
	cmd := &cobra.Command{
		Use:   "batch <directory>",
		Short: "Enhance every image in a directory",
		Long: `Enhance every png, jpeg and webp image in a directory. Images are
processed in windows of BATCH_WINDOW with BATCH_DELAY between windows.
Interrupting the command lets in-flight images finish; the rest are reported
as canceled.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.validate(); err != nil {
				return err
			}
			paths, err := collectImages(args[0])
			if err != nil {
				return err
			}
			cfg, p, logger, err := loadPipeline(cmd.Context())
			if err != nil {
				return err
			}
			reqs := make([]enhance.Request, len(paths))
			for i, path := range paths {
				reqs[i] = flags.request(path)
			}

			errOut := cmd.ErrOrStderr()
			results := p.Runner.Run(cmd.Context(), reqs, func(pr batch.Progress) {
				state := "ok"
				if !pr.Last.OK() {
					state = "failed"
				}
				fmt.Fprintf(errOut, "[%d/%d] %s %s\n", pr.Completed+pr.Failed, pr.Total, filepath.Base(paths[pr.Index]), state)
			})

			out := cmd.OutOrStdout()
			completed := 0
			images := make([]jobs.Image, len(results))
			for i, res := range results {
				images[i] = jobs.Image{OriginalURL: paths[i], Position: i}
				if res.OK() {
					completed++
					images[i].ProcessedURL = res.Success.StoredRef
				}
			}
			if flags.asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				for i, res := range results {
					printResult(out, filepath.Base(paths[i]), res)
				}
				fmt.Fprintf(out, "\n%d of %d images enhanced\n", completed, len(results))
			}

			if archive && completed > 0 {
				id := time.Now().UTC().Format("20060102-150405")
				ref, rep, err := jobs.Archive(cmd.Context(), p.Store, id, images, cfg.TempDir)
				if err != nil {
					return err
				}
				logger.Info().Int("written", rep.Written).Strs("skipped", rep.Skipped).Msg("batch: archive stored")
				fmt.Fprintf(out, "archive: %s\n", ref)
			}
			if completed < len(results) {
				return fmt.Errorf("%d of %d images failed", len(results)-completed, len(results))
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&archive, "archive", false, "Zip the enhanced images into the store")
	return cmd
}

func newEnqueueCmd() *cobra.Command {
	var flags requestFlags
	cmd := &cobra.Command{
		Use:   "enqueue <directory>",
		Short: "Queue a directory of images as a job for the worker",
		Long: `Create a queued job from every image in a directory. The worker reads
the source images from the same paths, so it must share the filesystem.
Progress can be followed at GET /v1/jobs/{id}/events.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.validate(); err != nil {
				return err
			}
			paths, err := collectImages(args[0])
			if err != nil {
				return err
			}
			cfg, err := infra.LoadConfig()
			if err != nil {
				return err
			}
			logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)
			pool, err := infra.NewDBPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			store := jobs.NewPGStore(infra.NewSQLRunner(pool, logger))
			job, images, err := store.Create(cmd.Context(), jobs.NewJob{
				Prompt:        flags.prompt,
				TemplateID:    flags.template,
				Quality:       image.NormalizeQuality(flags.quality),
				Size:          flags.size,
				Blurred:       flags.blurred,
				ProviderOrder: flags.providers,
				Originals:     paths,
			})
			if err != nil {
				return err
			}
			if flags.asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{"job": job, "images": images})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued job %s with %d images\n", job.ID, len(images))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newTemplatesCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List background templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list := templates.Default().List(category)
			if len(list) == 0 {
				return fmt.Errorf("no templates in category %q", category)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tLIGHTING")
			for _, t := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Category, t.LightingPreset)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "Only list this category")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := infra.LoadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}
			database, err := db.Open(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer database.Close()
			if err := db.RunMigrations(cmd.Context(), database); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			version, err := db.MigrationVersion(cmd.Context(), database)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
}

func newCredentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage provider API keys stored in the database",
	}
	set := &cobra.Command{
		Use:   "set <provider>",
		Short: "Store an API key read from stdin",
		Long: `Store the API key for a provider. The key is read from stdin so it
never appears in the process list. The worker uses stored keys for providers
whose key is not set in the environment.

  printf %s "$OPENAI_KEY" | drisya credentials set openai`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: credentials.Providers,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 4096))
			if err != nil {
				return err
			}
			cfg, err := infra.LoadConfig()
			if err != nil {
				return err
			}
			pool, err := infra.NewDBPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()
			logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)
			store := credentials.NewStore(infra.NewSQLRunner(pool, logger))
			if err := store.SetAPIKey(cmd.Context(), args[0], string(raw)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored api key for %s\n", strings.ToLower(args[0]))
			return nil
		},
	}
	cmd.AddCommand(set)
	return cmd
}
