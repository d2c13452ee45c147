package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/peerset"
)

// newPeerCmd groups commands that manage the known-peers file. Peer
// discovery and keypair-backed identity are external collaborators (spec.md
// §1 Non-goals); these commands are the manual fallback for registering a
// peer's address until a LAN-discovery collaborator does it automatically.
func newPeerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Manage known peers",
	}

	cmd.AddCommand(newPeerAddCmd())
	cmd.AddCommand(newPeerListCmd())
	cmd.AddCommand(newPeerRemoveCmd())

	return cmd
}

func newPeerAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <peer-id> <address> <sync-id>[,<sync-id>...]",
		Short: "Register a reachable peer",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			path := config.PeersPath(config.DefaultDataDir())

			peers, err := peerset.Load(path)
			if err != nil {
				return err
			}

			peerID, address, syncIDs := args[0], args[1], strings.Split(args[2], ",")

			updated := peerset.FromPeer(peerset.Peer{ID: peerID, Address: address, SyncIDs: syncIDs})

			found := false
			for i := range peers {
				if peers[i].ID == peerID {
					peers[i] = updated
					found = true
					break
				}
			}

			if !found {
				peers = append(peers, updated)
			}

			if err := peerset.Save(path, peers); err != nil {
				return err
			}

			cc.Statusf("Peer %s registered for %v\n", peerID, syncIDs)

			return nil
		},
	}
}

func newPeerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known peers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			peers, err := loadKnownPeers()
			if err != nil {
				return err
			}

			if len(peers) == 0 {
				fmt.Println("No known peers.")
				return nil
			}

			headers := []string{"ID", "ADDRESS", "SYNC-IDS"}
			rows := make([][]string, len(peers))

			for i, p := range peers {
				rows[i] = []string{p.ID, p.Address, strings.Join(p.SyncIDs, ",")}
			}

			printTable(os.Stdout, headers, rows)

			return nil
		},
	}
}

func newPeerRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <peer-id>",
		Short: "Forget a known peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			path := config.PeersPath(config.DefaultDataDir())

			peers, err := peerset.Load(path)
			if err != nil {
				return err
			}

			out := peers[:0]
			for _, p := range peers {
				if p.ID != args[0] {
					out = append(out, p)
				}
			}

			if err := peerset.Save(path, out); err != nil {
				return err
			}

			cc.Statusf("Peer %s removed\n", args[0])

			return nil
		},
	}
}
