package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smartspeech-client/internal/app"
	"smartspeech-client/internal/config"
	"smartspeech-client/internal/observability/logging"
	"smartspeech-client/internal/smartspeech"
	"smartspeech-client/internal/task"
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] get|cancel|wait <task-id>\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	configFile := flag.String("config", "", "Optional YAML config file (env overrides it)")
	interval := flag.Duration("interval", task.DefaultPollInterval, "Poll interval for wait")
	output := flag.String("out", "", "With wait: download the result file here")
	timeout := flag.Duration("timeout", time.Hour, "Overall timeout")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 2 {
		usage()
		os.Exit(2)
	}
	command, taskID := flag.Arg(0), flag.Arg(1)

	a := app.New(loadConfig(*configFile))
	log := logging.Logger()
	if err := a.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start client")
	}
	defer a.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	client := task.New(a.Session.Conn(), *interval)

	var (
		info smartspeech.TaskInfo
		err  error
	)
	switch command {
	case "get":
		info, err = client.Get(ctx, taskID)
	case "cancel":
		info, err = client.Cancel(ctx, taskID)
	case "wait":
		info, err = client.Wait(ctx, taskID, func(ti smartspeech.TaskInfo) {
			log.Info().Str("taskId", ti.ID).Stringer("status", ti.Status).Msg("task polled")
		})
		if err == nil && *output != "" {
			err = download(ctx, client, a, info, *output)
		}
	default:
		usage()
		a.Shutdown()
		os.Exit(2)
	}
	if err != nil {
		log.Error().Err(err).Str("taskId", taskID).Msg("task command failed")
		a.Shutdown()
		os.Exit(1)
	}

	fmt.Printf("id=%s status=%s created=%s updated=%s", info.ID, info.Status,
		info.CreatedAt.Format(time.RFC3339), info.UpdatedAt.Format(time.RFC3339))
	if info.ResponseFileID != "" {
		fmt.Printf(" response_file_id=%s", info.ResponseFileID)
	}
	if info.Error != "" {
		fmt.Printf(" error=%q", info.Error)
	}
	fmt.Println()
}

func download(ctx context.Context, client *task.Client, a *app.Application, info smartspeech.TaskInfo, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := client.Download(ctx, a.Session, info, f)
	if err != nil {
		return err
	}
	logger := logging.Logger()
	logger.Info().Str("file", path).Int64("bytes", n).Msg("result downloaded")
	return nil
}

func loadConfig(path string) *config.Configuration {
	if path == "" {
		return config.Load()
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		logger := logging.Logger()
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	return cfg
}
