package main

import (
	"fmt"
	"os"
	"path/filepath"

	"wstunnel/internal/config"
	"wstunnel/internal/manager"

	"github.com/spf13/cobra"
)

var (
	configDir string
	cfg       *config.GlobalConfig
)

var rootCmd = &cobra.Command{
	Use:   "wstunnel-client",
	Short: "Multiplexed tunnel client with WebSocket and Shadowsocks support",
	Long: `wstunnel-client relays local SOCKS5 connections over a single
multiplexed channel to a wstunnel-relay process, optionally wrapped in a
Shadowsocks cipher or carried over WebSocket.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadGlobalConfig(configDir)
		return err
	},
}

var addCmd = &cobra.Command{
	Use:   "add [key-or-file] [name]",
	Short: "Add a new server",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		name := "server"
		if len(args) > 1 {
			name = args[1]
		}
		server, err := config.ParseKey(key, name)
		if err != nil {
			return fmt.Errorf("failed to parse key: %w", err)
		}
		cfg.Servers = append(cfg.Servers, server)
		return cfg.Save()
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		for i, s := range cfg.Servers {
			marker := " "
			if s.ID == cfg.ActiveID {
				marker = "*"
			}
			fmt.Printf("%s %d. %s - %s\n", marker, i+1, s.Name, s.GetKeyString())
		}
		return nil
	},
}

var connectCmd = &cobra.Command{
	Use:   "connect [name-or-index]",
	Short: "Connect to a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server := findServer(args[0])
		if server == nil {
			return fmt.Errorf("server not found: %s", args[0])
		}
		cfg.ActiveID = server.ID
		if err := cfg.Save(); err != nil {
			return err
		}
		return manager.NewVPNManager(cfg).Connect(server)
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect the active tunnel",
	RunE: func(cmd *cobra.Command, args []string) error {
		return manager.NewVPNManager(cfg).Disconnect()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connection status",
	RunE: func(cmd *cobra.Command, args []string) error {
		status := manager.NewVPNManager(cfg).GetStatus()
		fmt.Printf("State: %s\n", status.State)
		if status.Server != nil {
			fmt.Printf("Server: %s\n", status.Server.Name)
			fmt.Printf("Connected since: %s\n", status.StartTime.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove [name-or-index]",
	Short: "Remove a configured server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for i, s := range cfg.Servers {
			if fmt.Sprintf("%d", i+1) == args[0] || s.Name == args[0] {
				if s.ID == cfg.ActiveID {
					cfg.ActiveID = ""
				}
				cfg.Servers = append(cfg.Servers[:i], cfg.Servers[i+1:]...)
				return cfg.Save()
			}
		}
		return fmt.Errorf("server not found: %s", args[0])
	},
}

func findServer(ref string) *config.ServerConfig {
	for i, s := range cfg.Servers {
		if fmt.Sprintf("%d", i+1) == ref || s.Name == ref {
			return s
		}
	}
	return nil
}

func init() {
	home, _ := os.UserHomeDir()
	rootCmd.PersistentFlags().StringVar(&configDir, "config",
		filepath.Join(home, ".config", "wstunnel"), "config directory")
	rootCmd.AddCommand(addCmd, listCmd, connectCmd, disconnectCmd, statusCmd, removeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
