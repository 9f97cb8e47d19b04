package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/jtejido/fingerlive/config"
	"github.com/jtejido/fingerlive/frame"
	"github.com/jtejido/fingerlive/liveness"
	"github.com/jtejido/fingerlive/server"
	"github.com/jtejido/fingerlive/session"
	"github.com/jtejido/fingerlive/store"
)

var frameExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true,
	".pgm": true, ".ppm": true, ".pnm": true, ".pam": true,
}

type analyzeOptions struct {
	AssumeFinger bool
	Save         bool
	Quiet        bool
}

var analyzeOpts analyzeOptions

var analyzeCmd = &cobra.Command{
	Use:   "analyze <dir>",
	Short: "Run a directory of captured frames through one session",
	Long: `Frames are read in file name order and fed to a single session until
its verdict is reached. The final result is printed as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		progress := io.Writer(os.Stderr)
		if analyzeOpts.Quiet {
			progress = io.Discard
		}
		return analyzeDir(cmd.Context(), cfg, args[0], analyzeOpts, cmd.OutOrStdout(), progress, log)
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeOpts.AssumeFinger, "assume-finger", true, "treat every frame as showing a finger instead of running skin detection")
	analyzeCmd.Flags().BoolVar(&analyzeOpts.Save, "save", false, "persist the result when the verdict is LIVE")
	analyzeCmd.Flags().BoolVarP(&analyzeOpts.Quiet, "quiet", "q", false, "hide the progress bar")
	rootCmd.AddCommand(analyzeCmd)
}

func frameFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func analyzeDir(ctx context.Context, base *config.Config, dir string, opts analyzeOptions, out, progress io.Writer, log zerolog.Logger) error {
	files, err := frameFiles(dir)
	if err != nil {
		return fmt.Errorf("failed to list frames: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no frames found in %s", dir)
	}

	// the held verdict is the answer, so never restart
	c := *base
	c.Server.AutoRestart = false
	engine, err := liveness.New(&c, liveness.WithLogger(log))
	if err != nil {
		return err
	}

	sessionOpts := []session.Option{session.WithLogger(log)}
	if opts.Save {
		results, err := store.NewFileStore(c.Save)
		if err != nil {
			return err
		}
		sessionOpts = append(sessionOpts, session.WithStore(results))
	}
	ctrl := session.New(filepath.Base(dir), engine, sessionOpts...)
	defer ctrl.Close()
	if _, err := ctrl.Start(); err != nil {
		return err
	}

	decoder := frame.NewDecoder(c.Frame)
	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Analyzing frames"),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionShowCount(),
	)

	var last session.Update
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		f, err := decoder.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("skipping frame")
			bar.Add(1)
			continue
		}

		if opts.AssumeFinger {
			last, err = ctrl.ProcessDetected(f, true)
		} else {
			last, err = ctrl.Process(f)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		bar.Add(1)
		if last.Result.Final() {
			break
		}
	}
	bar.Finish()
	fmt.Fprintln(progress)

	report := struct {
		server.ResultMessage
		Saved *store.Saved `json:"saved,omitempty"`
	}{ResultMessage: server.NewResultMessage(ctrl.ID(), last)}

	if opts.Save {
		saved, err := ctrl.Save()
		switch {
		case err == nil:
			report.Saved = &saved
		case errors.Is(err, session.ErrNotLive), errors.Is(err, session.ErrNoFrame):
			log.Info().Str("status", string(last.Result.Status)).Msg("result not saved")
		default:
			return err
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
