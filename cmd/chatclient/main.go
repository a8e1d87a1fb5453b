package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"timebank-chat/internal/chattypes"
	"timebank-chat/internal/client"
	"timebank-chat/internal/config"
	"timebank-chat/internal/logging"
	"timebank-chat/internal/timeline"
)

var rootCmd = &cobra.Command{
	Use:   "chatclient",
	Short: "Terminal client for the time-bank chat relay",
	Long: `Reads lines from stdin and sends each one as a chat message.

Commands:
  /react <messageId> <emoji>   react to a message
  /edit <messageId> <text>     edit a message on this screen only (not sent)
  /list                        print the timeline
  /quit                        disconnect and exit`,
	SilenceUsage: true,
	RunE:         runClient,
}

var (
	flagConfig string
	flagUserID string
	flagName   string
	flagAvatar string
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&flagConfig, "config", "", "path to config file")
	flags.String("url", "", "relay websocket URL (env CLIENT_URL)")
	flags.String("log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	flags.StringVar(&flagUserID, "user-id", "", "your user id")
	flags.StringVar(&flagName, "name", "", "display name (defaults to the user id)")
	flags.StringVar(&flagAvatar, "avatar", "", "avatar URL")
	_ = rootCmd.MarkFlagRequired("user-id")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runClient(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(flagConfig, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Init(cfg.LogLevel, true)

	out := cmd.OutOrStdout()
	manager := client.NewManager(cfg.Client)
	tl := timeline.New()
	me := chattypes.Sender{ID: flagUserID, Name: flagName, Avatar: flagAvatar}
	sess, err := newSession(me, manager, tl, out)
	if err != nil {
		return err
	}

	tl.SetOnAppend(sess.printMessage)
	manager.OnMessage(tl)
	manager.OnStateChange(func(ev client.StateEvent) {
		fmt.Fprintf(out, "* %s\n", ev.New)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := manager.Connect(ctx); err != nil {
		// 重连已安排，继续接受输入
		log.Warn().Err(err).Msg("首次连接失败")
	}
	defer manager.Disconnect()

	return sess.run(ctx, cmd.InOrStdin())
}
