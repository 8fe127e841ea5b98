package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cppla/attachguard/config"
	"github.com/cppla/attachguard/detector"
	"github.com/cppla/attachguard/pipeline"
	"github.com/cppla/attachguard/progress"
	"github.com/cppla/attachguard/routes"
	"github.com/cppla/attachguard/utils"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "attachguard",
		Short:         "Scan website attachments for ID card and phone numbers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	cmd.AddCommand(newServeCommand(), newSyncCommand(), newDetectCommand(), newDownloadCommand())
	return cmd
}

// bootstrap loads configuration, initialises the logger and builds the application.
func bootstrap() (*application, error) {
	cfg := config.Load()
	if err := utils.InitLogger(cfg); err != nil {
		return nil, err
	}
	return newApplication(cfg)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and websocket progress server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	app, err := bootstrap()
	if err != nil {
		return err
	}
	defer app.close()

	r := routes.SetupRouter(app.services())
	utils.Sugar.Infof("Starting server on port %s (graceful)", app.cfg.AppPort)
	return utils.GraceServer(":"+app.cfg.AppPort, r, utils.WithOnShutdown(app.hub.CloseAll))
}

func newSyncCommand() *cobra.Command {
	var site string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror sites and attachments from the upstream database",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap()
			if err != nil {
				return err
			}
			defer app.close()

			ctx := commandContext(cmd)
			syncer, release, err := app.openSyncer(ctx)
			if err != nil {
				return err
			}
			defer release()

			sites, err := syncer.SyncSites(ctx)
			if err != nil {
				return err
			}
			attachments, err := syncer.SyncAttachments(ctx, site)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synced %d sites, %d attachments\n", sites, attachments)
			return nil
		},
	}
	cmd.Flags().StringVar(&site, "site", "", "Only sync attachments of this site owner")
	return cmd
}

func newDetectCommand() *cobra.Command {
	var (
		site string
		mode string
	)
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Run sensitive-data detection for every attachment of a site",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap()
			if err != nil {
				return err
			}
			defer app.close()

			m := detector.ParseMode(mode)
			if m == detector.ModeAI && !app.runner.Processor().AIAvailable() {
				return fmt.Errorf("ai detection requires OPENAI_API_KEY")
			}
			jobID := uuid.NewString()
			hubSink := app.hub.SinkFor(jobID)
			res, err := app.runner.Run(commandContext(cmd), site, pipeline.RunOptions{
				Mode:  m,
				JobID: jobID,
				Sink: func(ev progress.Event) {
					utils.Sugar.Infof("[%s] %d/%d %s", jobID, ev.Current, ev.Total, ev.Message)
					hubSink(ev)
				},
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed %d, sensitive %d, skipped %d, failed %d of %d\n",
				res.Processed, res.Sensitive, res.Skipped, res.Failed, res.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&site, "site", "", "Site owner whose attachments are scanned")
	cmd.Flags().StringVar(&mode, "mode", "normal", "Detection mode: normal or ai")
	_ = cmd.MarkFlagRequired("site")
	return cmd
}

func newDownloadCommand() *cobra.Command {
	var site string
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Fill the attachment cache for a site without extracting",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap()
			if err != nil {
				return err
			}
			defer app.close()

			res, err := app.runner.DownloadOnly(commandContext(cmd), site)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "downloaded %d of %d\n", res.Downloaded, res.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&site, "site", "", "Site owner whose attachments are downloaded")
	_ = cmd.MarkFlagRequired("site")
	return cmd
}
