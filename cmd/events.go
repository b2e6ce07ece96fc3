/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schoolhub/apiserver/config"
	"github.com/schoolhub/apiserver/internal/mq"
	"github.com/schoolhub/apiserver/internal/services"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect auth events",
}

var eventsWatchCmd = &cobra.Command{
	Use:   "watch [channel]",
	Short: "Print events from a channel until interrupted",
	Long: fmt.Sprintf(`Print events from a channel until interrupted. Channels:

	%s
	%s
`, services.ChannelLogin, services.ChannelUserDeactivated),
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		channel := services.ChannelLogin
		if len(args) == 1 {
			channel = args[0]
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, config.LoadConfig().MQ)
		if err != nil {
			return fmt.Errorf("open mq: %w", err)
		}
		if broker == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer broker.Close()

		err = broker.Subscribe(ctx, channel, func(_ context.Context, msg mq.Message) error {
			cmd.Printf("%s %s\n", msg.ID, msg.Data)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsWatchCmd)
}
