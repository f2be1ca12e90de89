package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/siprak/portal/config"
	"github.com/siprak/portal/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
}

func main() {
	logger := bootstrap.InitLogger(os.Getenv("LOG_LEVEL"))

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stderr); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	cmdCtx := &commandContext{
		Ctx:    ctx,
		Logger: logger,
		Config: cfg,
		Out:    os.Stdout,
	}
	runErr := cmd.run(cmdCtx, os.Args[2:])
	stop()
	if runErr != nil {
		logger.ErrorContext(ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Apply the portal schema",
			run:         runMigrations,
		},
		"login": {
			name:        "login",
			description: "Sign in and print the landing route",
			run:         runLogin,
		},
		"whoami": {
			name:        "whoami",
			description: "Sign in and print the profile, roles and permissions",
			run:         runWhoAmI,
		},
		"register": {
			name:        "register",
			description: "Create a credential, profile and role assignment",
			run:         runRegister,
		},
		"reset-password": {
			name:        "reset-password",
			description: "Request a password reset link",
			run:         runResetPassword,
		},
		"update-profile": {
			name:        "update-profile",
			description: "Edit the signed-in user's profile",
			run:         runUpdateProfile,
		},
		"notifications": {
			name:        "notifications",
			description: "List the signed-in user's notifications",
			run:         runListNotifications,
		},
		"watch": {
			name:        "watch",
			description: "Stream notifications as they arrive, keeping the session fresh",
			run:         runWatch,
		},
		"notify": {
			name:        "notify",
			description: "Send a notification to a user (defaults to yourself)",
			run:         runNotify,
		},
		"read": {
			name:        "read",
			description: "Mark one notification as read",
			run:         runMarkRead,
		},
		"read-all": {
			name:        "read-all",
			description: "Mark every notification as read",
			run:         runMarkAllRead,
		},
		"delete": {
			name:        "delete",
			description: "Delete one notification",
			run:         runDelete,
		},
		"clear": {
			name:        "clear",
			description: "Delete every notification",
			run:         runClear,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: portal <command> [flags]\n\nAvailable commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-16s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
