package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vaultbeam/vaultbeam/internal/app"
	"github.com/vaultbeam/vaultbeam/pkg/discovery"
	"github.com/vaultbeam/vaultbeam/pkg/pairing"
	"github.com/vaultbeam/vaultbeam/pkg/session"
	"github.com/vaultbeam/vaultbeam/pkg/ui"
	"github.com/vaultbeam/vaultbeam/pkg/vault"
)

func main() {
	f, _ := os.OpenFile("debug.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close log file", "error", err)
		}
	}()
	logger := slog.New(slog.NewTextHandler(f, nil))
	slog.SetDefault(logger)

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "vaultbeam device"
	}

	var (
		port        int
		deviceName  string
		vaultConfig string
		vaultID     string
		request     string
		frameInput  string
	)

	cmd := &cobra.Command{
		Use:   "vaultbeam",
		Short: "Move a vault between devices over animated QR codes or the local network",
	}
	cmd.PersistentFlags().IntVar(&port, "port", 0, "Pairing port (0 picks a free one)")
	cmd.PersistentFlags().StringVar(&deviceName, "name", hostname, "Device name shown to peers")
	cmd.PersistentFlags().StringVar(&vaultConfig, "vault-config", "vault.json", "Path to the vault configuration document")

	newCommands := func() *app.Commands {
		provider := vault.NewFileProvider(vaultConfig)
		service := pairing.NewService(uuid.NewString(), deviceName, port, &discovery.MDNSAdapter{}, provider, logger)
		return app.NewCommands(session.NewRegistry(logger), service, provider, nil, logger)
	}

	runTUI := func(mode ui.Mode, commands *app.Commands, opts ui.Options) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if mode == ui.ModeReceive && frameInput != "" {
			go feedFrames(ctx, commands, frameInput, logger)
		}

		p := tea.NewProgram(ui.NewModel(ctx, mode, commands, opts))
		if _, err := p.Run(); err != nil {
			fmt.Printf("Alas, there's been an error: %v", err)
			os.Exit(1)
		}
	}

	receiveCmd := &cobra.Command{
		Use:   "receive",
		Short: "Display an import request and ingest scanned frames",
		Run: func(cmd *cobra.Command, args []string) {
			runTUI(ui.ModeReceive, newCommands(), ui.Options{})
		},
	}
	receiveCmd.Flags().StringVar(&frameInput, "frame-input", "", "File or FIFO delivering scanned frame strings, one per line")

	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Animate fountain frames for a scanned import request",
		Run: func(cmd *cobra.Command, args []string) {
			runTUI(ui.ModeSend, newCommands(), ui.Options{VaultID: vaultID, Request: request})
		},
	}
	sendCmd.Flags().StringVar(&vaultID, "vault", "", "Id of the vault to send")
	sendCmd.Flags().StringVar(&request, "request", "", "Scanned import request string")
	_ = sendCmd.MarkFlagRequired("request")

	pairCmd := &cobra.Command{
		Use:   "pair",
		Short: "Announce this device and receive a vault over the local network",
		Run: func(cmd *cobra.Command, args []string) {
			runTUI(ui.ModePair, newCommands(), ui.Options{})
		},
	}

	discoverCmd := &cobra.Command{
		Use:   "discover",
		Short: "Find nearby devices and send a vault over the local network",
		Run: func(cmd *cobra.Command, args []string) {
			runTUI(ui.ModeDiscover, newCommands(), ui.Options{VaultID: vaultID})
		},
	}
	discoverCmd.Flags().StringVar(&vaultID, "vault", "", "Id of the vault to send")

	cmd.AddCommand(receiveCmd)
	cmd.AddCommand(sendCmd)
	cmd.AddCommand(pairCmd)
	cmd.AddCommand(discoverCmd)

	if err := fang.Execute(context.Background(), cmd); err != nil {
		os.Exit(1)
	}
}

// feedFrames pipes scanned frame strings into the import session. A QR
// scanner wedge (or a test fixture) writes one frame per line; malformed
// lines are dropped by the session itself.
func feedFrames(ctx context.Context, commands *app.Commands, path string, logger *slog.Logger) {
	in, err := os.Open(path)
	if err != nil {
		logger.Error("failed to open frame input", "path", path, "error", err)
		return
	}
	defer in.Close()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		if _, err := commands.SubmitImportFrame(line); err != nil {
			logger.Warn("frame rejected", "error", err)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("frame input read failed", "error", err)
	}
}
