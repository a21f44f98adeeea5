package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/zond/juicebot"
	"github.com/zond/juicebot/server"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	configPath := flag.String("config", "", "YAML file to read settings from before the environment and flags.")
	flags := server.DefaultConfig()
	flag.StringVar(&flags.SSHAddr, "ssh", flags.SSHAddr, "Where to listen to SSH connections.")
	flag.StringVar(&flags.Dir, "dir", flags.Dir, "Where to save databases and keys.")
	flag.StringVar(&flags.BotName, "bot", flags.BotName, "Name of the bot in the room.")
	flag.StringVar(&flags.Operator, "operator", flags.Operator, "User allowed to run the operator commands.")
	flag.StringVar(&flags.OperatorKeys, "operator_keys", flags.OperatorKeys, "authorized_keys file with the keys the operator may log in with.")
	flag.DurationVar(&flags.RunTimeout, "run_timeout", flags.RunTimeout, "Max time for a script body to run.")
	flag.DurationVar(&flags.HandlerTimeout, "handler_timeout", flags.HandlerTimeout, "Max time for a command handler or listener to run.")
	flag.DurationVar(&flags.ConfirmTimeout, "confirm_timeout", flags.ConfirmTimeout, "How long confirmation prompts wait for the operator.")
	flag.BoolVar(&flags.FirstWins, "first_wins", flags.FirstWins, "Only let the first running script handle a shared trigger.")
	flag.StringVar(&flags.LogFile, "log", flags.LogFile, "File to log to, rotated when large. Empty means stderr.")

	flag.Parse()

	config, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	// Flags given on the command line win over the file and the environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "ssh":
			config.SSHAddr = flags.SSHAddr
		case "dir":
			config.Dir = flags.Dir
		case "bot":
			config.BotName = flags.BotName
		case "operator":
			config.Operator = flags.Operator
		case "operator_keys":
			config.OperatorKeys = flags.OperatorKeys
		case "run_timeout":
			config.RunTimeout = flags.RunTimeout
		case "handler_timeout":
			config.HandlerTimeout = flags.HandlerTimeout
		case "confirm_timeout":
			config.ConfirmTimeout = flags.ConfirmTimeout
		case "first_wins":
			config.FirstWins = flags.FirstWins
		case "log":
			config.LogFile = flags.LogFile
		}
	})

	if config.LogFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   config.LogFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, config)
	if err != nil {
		log.Fatal(juicebot.StackTrace(err))
	}

	go func() {
		select {
		case <-ctx.Done():
			log.Printf("Shutting down")
			if err := srv.Close(); err != nil {
				log.Println(juicebot.StackTrace(err))
			}
		case <-srv.Done():
		}
	}()

	if err := srv.Start(); err != nil {
		log.Fatal(juicebot.StackTrace(err))
	}
}
