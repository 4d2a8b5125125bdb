package main

import (
	"context"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/dig"
	"golang.org/x/term"
)

var readPasswordFunc = term.ReadPassword // mockable

// commandLine resolves each command's dependencies from the container,
// so only what a command needs gets connected.
type commandLine struct {
	container *dig.Container
}

func (cli *commandLine) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Exam office administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		cli.migrateCommand(),
		cli.addUserCommand(),
		cli.resetPasswordCommand(),
		cli.recomputeCommand(),
		cli.readinessCommand(),
		cli.closeSessionCommand(),
	)
	return root
}

func (cli *commandLine) invoke(fn interface{}) error {
	return cli.container.Invoke(fn)
}

// promptPassword reads a password from the terminal without echoing it.
func promptPassword(cmd *cobra.Command, prompt string) (string, error) {
	cmd.Print(prompt)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	cmd.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
