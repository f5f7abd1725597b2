// Command tonpay connects a TON wallet and pays invoices in TON or USDT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/kartacom/tonpay/pkg/commands"
	"github.com/kartacom/tonpay/pkg/commands/session"
	"github.com/kartacom/tonpay/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	lggr, err := logger.NewCLI(zapcore.InfoLevel)
	if err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	code := 0
	if err := newRootCmd(commands.New(lggr)).ExecuteContext(ctx); err != nil {
		code = 1
	}
	_ = lggr.Sync()
	stop()
	os.Exit(code)
}

func newRootCmd(cmds *commands.Commands) *cobra.Command {
	root := &cobra.Command{
		Use:          "tonpay",
		Short:        "Pay invoices in TON or USDT from a connected wallet",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", session.DefaultConfigPath, "Path to the config file")
	root.AddCommand(cmds.All()...)

	return root
}
