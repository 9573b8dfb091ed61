// Command termstack is the compositor daemon: it owns the layout
// stack, the terminal manager, and the shell-integration socket, and
// runs the per-frame reconciliation loop that keeps them in sync.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/karlb/termstack/internal/compositor"
	"github.com/karlb/termstack/internal/config"
	"github.com/karlb/termstack/internal/diagnostic"
	"github.com/karlb/termstack/internal/ipc"
)

// Version is set at build time via ldflags.
var Version = "dev"

// frameInterval paces Tick the way a 60Hz output would, in the
// absence of a real Wayland frame callback to drive it.
const frameInterval = 16 * time.Millisecond

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Print("\033[?1049l") // exit alt screen
			fmt.Print("\033[?25h")   // show cursor
			fmt.Print("\033[0m")     // reset colors

			fmt.Fprintf(os.Stderr, "\n\nPANIC: %v\n", r)
			os.Exit(1)
		}
	}()

	logFile, err := os.Create("/tmp/termstack.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	logLevel := slog.LevelInfo
	if os.Getenv("TERMSTACK_LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))

	rootCmd := &cobra.Command{
		Use:     "termstack",
		Short:   "Content-aware tiling terminal compositor",
		Version: Version,
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the compositor",
		RunE:  runStart,
	}
	startCmd.Flags().Uint16("cols", 80, "terminal column width for spawned cells")
	startCmd.Flags().String("diagnostic-addr", "", "bind a local websocket introspection endpoint (e.g. 127.0.0.1:7890)")
	rootCmd.AddCommand(startCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running compositor's socket status",
		RunE:  runStatus,
	}
	statusCmd.Flags().Bool("qr", false, "render the socket path as a QR code")
	statusCmd.Flags().Bool("attach", false, "put stdin into raw mode and restore it, to confirm the terminal is attachable")
	rootCmd.AddCommand(statusCmd)

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show the active configuration",
		RunE:  runConfig,
	}
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runStart(cmd *cobra.Command, args []string) error {
	cols, _ := cmd.Flags().GetUint16("cols")
	diagnosticAddr, _ := cmd.Flags().GetString("diagnostic-addr")
	logger := slog.Default()

	cfg := config.Load()

	shellPath := os.Getenv("SHELL")
	if shellPath == "" {
		shellPath = "/bin/sh"
	}

	outputWidth, outputHeight := int32(1920), int32(1080)
	cellWidth, cellHeight := uint32(cfg.FontSize*0.6), uint32(cfg.FontSize*1.2)

	comp, err := compositor.New(cfg, shellPath, cols, cellWidth, cellHeight, outputWidth, outputHeight)
	if err != nil {
		return fmt.Errorf("create compositor: %w", err)
	}

	socketPath := ipc.SocketPath()
	os.Setenv("TERMSTACK_SOCKET", socketPath)
	server, err := ipc.Listen(socketPath, comp)
	if err != nil {
		return fmt.Errorf("listen on shell-integration socket: %w", err)
	}
	defer server.Close()

	var diag *diagnostic.Server
	if diagnosticAddr != "" {
		diag, err = diagnostic.NewServer(diagnosticAddr)
		if err != nil {
			return fmt.Errorf("start diagnostic server: %w", err)
		}
		defer diag.Close()
		go func() {
			if err := diag.Serve(); err != nil {
				logger.Warn("diagnostic server stopped", "error", err)
			}
		}()
		logger.Info("diagnostic endpoint listening", "addr", diag.Addr())
	}

	logger.Info("compositor started", "version", Version, "socket", socketPath, "shell", shellPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		done <- server.Serve()
	}()

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig.String())
			return nil
		case err := <-done:
			if err != nil {
				logger.Error("shell-integration socket closed", "error", err)
			}
			return err
		case <-ticker.C:
			comp.Tick()
			if diag != nil {
				if snapshot, err := comp.Snapshot(); err == nil {
					diag.Broadcast(snapshot)
				}
			}
			if comp.Quit {
				logger.Info("compositor requested shutdown")
				return nil
			}
		}
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	qr, _ := cmd.Flags().GetBool("qr")
	attach, _ := cmd.Flags().GetBool("attach")

	socketPath := os.Getenv("TERMSTACK_SOCKET")
	if socketPath == "" {
		socketPath = ipc.SocketPath()
	}

	if _, err := os.Stat(socketPath); err != nil {
		fmt.Printf("socket: %s (not running)\n", socketPath)
		return nil
	}
	fmt.Printf("socket: %s (running)\n", socketPath)

	if qr {
		code, err := qrcode.New(socketPath, qrcode.Medium)
		if err != nil {
			return fmt.Errorf("render QR code: %w", err)
		}
		fmt.Println(code.ToSmallString(false))
	}

	if attach {
		if err := probeAttach(); err != nil {
			return fmt.Errorf("attach probe: %w", err)
		}
	}

	return nil
}

// probeAttach verifies the controlling terminal still takes raw-mode
// the way the shell-integration helper's spawned terminals expect,
// restoring the original state before returning.
func probeAttach() error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("stdin is not a terminal")
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	fmt.Print("raw mode probe ok\r\n")
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	fmt.Printf("theme: %s\n", cfg.Theme)
	fmt.Printf("font_size: %.1f\n", cfg.FontSize)
	fmt.Printf("window_gap: %d\n", cfg.WindowGap)
	fmt.Printf("min_window_height: %d\n", cfg.MinWindowHeight)
	fmt.Printf("max_window_height: %d\n", cfg.MaxWindowHeight)
	fmt.Printf("scroll_speed: %.1f\n", cfg.ScrollSpeed)
	fmt.Printf("auto_scroll: %v\n", cfg.AutoScroll)
	fmt.Printf("csd_apps: %v\n", cfg.CSDApps)
	fmt.Printf("shell_commands: %v\n", cfg.ShellCommands)

	return nil
}
