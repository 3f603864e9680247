package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"shadowrealms/internal/ledger"
	"shadowrealms/internal/syncq"

	"github.com/spf13/cobra"
)

func newClaimCmd(g *globals) *cobra.Command {
	claim := &cobra.Command{
		Use:   "claim",
		Short: "Exclusive resource claims",
	}

	var playerID string
	take := &cobra.Command{
		Use:   "take <resource>",
		Short: "Claim an unowned resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolvePlayer(playerID)
			if err != nil {
				return err
			}
			resource := strings.TrimSpace(args[0])
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(g).Claim(ctx, resource, id)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method: http.MethodPost,
					Path:   "/v1/claims/" + url.PathEscape(resource),
					Body:   map[string]any{"owner_id": id},
				})
			}
			c, err := decodeInto[ledger.ClaimRecord](out)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("%s is now yours.", c.ResourceName))
			return nil
		},
	}
	take.Flags().StringVar(&playerID, "player", "", "player id (defaults to current player)")

	show := &cobra.Command{
		Use:   "show <resource>",
		Short: "Show who owns a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(g).GetClaim(ctx, args[0])
			if err != nil {
				return err
			}
			c, err := decodeInto[ledger.ClaimRecord](out)
			if err != nil {
				return err
			}
			renderClaim(c)
			return nil
		},
	}

	var listPlayer string
	list := &cobra.Command{
		Use:   "list",
		Short: "List a player's claims",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolvePlayer(listPlayer)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(g).Claims(ctx, id)
			if err != nil {
				return err
			}
			return renderClaims(out)
		},
	}
	list.Flags().StringVar(&listPlayer, "player", "", "player id (defaults to current player)")

	purge := &cobra.Command{
		Use:   "purge <resource>",
		Short: "Delete a claim record (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(g).PurgeClaim(ctx, args[0])
			if err != nil {
				return err
			}
			return renderSimpleOK(out, "Claim purged.")
		},
	}

	claim.AddCommand(take, show, list, purge)
	return claim
}

func newBondCmd(g *globals) *cobra.Command {
	bond := &cobra.Command{
		Use:   "bond",
		Short: "Symmetric relationships",
	}

	var playerID, initiator string
	create := &cobra.Command{
		Use:   "create <partner-id> <kind>",
		Short: "Bond the current player with a partner",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolvePlayer(playerID)
			if err != nil {
				return err
			}
			partner, err := ledger.ValidatePlayerID(args[0])
			if err != nil {
				return err
			}
			kind := strings.ToLower(strings.TrimSpace(args[1]))
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(g).CreateBond(ctx, id, partner, kind, initiator)
			if err != nil {
				body := map[string]any{"id_a": id, "id_b": partner, "kind": kind}
				if initiator != "" {
					body["initiator_id"] = initiator
				}
				return queueOnNetworkError(err, syncq.Command{Method: http.MethodPost, Path: "/v1/bonds", Body: body})
			}
			b, err := decodeInto[ledger.Bond](out)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Bonded (%s) with %s.", b.Kind, b.PartnerID))
			return nil
		},
	}
	create.Flags().StringVar(&playerID, "player", "", "player id (defaults to current player)")
	create.Flags().StringVar(&initiator, "initiator", "", "which side initiated (defaults to the current player)")

	var breakPlayer string
	breakCmd := &cobra.Command{
		Use:   "break <partner-id> <kind>",
		Short: "End an active bond",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolvePlayer(breakPlayer)
			if err != nil {
				return err
			}
			partner, err := ledger.ValidatePlayerID(args[0])
			if err != nil {
				return err
			}
			kind := strings.ToLower(strings.TrimSpace(args[1]))
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(g).BreakBond(ctx, id, partner, kind)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method: http.MethodDelete,
					Path:   "/v1/bonds",
					Body:   map[string]any{"id_a": id, "id_b": partner, "kind": kind},
				})
			}
			return renderSimpleOK(out, "Bond ended.")
		},
	}
	breakCmd.Flags().StringVar(&breakPlayer, "player", "", "player id (defaults to current player)")

	var partnerPlayer string
	partnerCmd := &cobra.Command{
		Use:   "partner <kind>",
		Short: "Show the active partner for an exclusive bond kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolvePlayer(partnerPlayer)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(g).Partner(ctx, id, strings.ToLower(strings.TrimSpace(args[0])))
			if err != nil {
				return err
			}
			b, err := decodeInto[ledger.Bond](out)
			if err != nil {
				return err
			}
			renderBonds([]ledger.Bond{b})
			return nil
		},
	}
	partnerCmd.Flags().StringVar(&partnerPlayer, "player", "", "player id (defaults to current player)")

	var listPlayer string
	list := &cobra.Command{
		Use:   "list",
		Short: "List active bonds",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolvePlayer(listPlayer)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(g).Bonds(ctx, id)
			if err != nil {
				return err
			}
			payload, err := decodeInto[struct {
				Bonds []ledger.Bond `json:"bonds"`
			}](out)
			if err != nil {
				return err
			}
			renderBonds(payload.Bonds)
			return nil
		},
	}
	list.Flags().StringVar(&listPlayer, "player", "", "player id (defaults to current player)")

	bond.AddCommand(create, breakCmd, partnerCmd, list)
	return bond
}

func newLinkCmd(g *globals) *cobra.Command {
	link := &cobra.Command{
		Use:   "link",
		Short: "Directed links such as parent or mentor",
	}

	var playerID, label string
	add := &cobra.Command{
		Use:   "add <target-id> <link-type>",
		Short: "Record a link from the current player to a target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolvePlayer(playerID)
			if err != nil {
				return err
			}
			target, err := ledger.ValidatePlayerID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(g).RecordLink(ctx, id, target, strings.ToLower(strings.TrimSpace(args[1])), label)
			if err != nil {
				return err
			}
			l, err := decodeInto[ledger.Link](out)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Recorded %s -> %s (%s).", l.SourceID, l.TargetID, l.LinkType))
			return nil
		},
	}
	add.Flags().StringVar(&playerID, "player", "", "source player id (defaults to current player)")
	add.Flags().StringVar(&label, "label", "", "free-form label")

	var listPlayer, direction string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List outgoing or incoming links",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolvePlayer(listPlayer)
			if err != nil {
				return err
			}
			if _, err := ledger.ParseDirection(direction); err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(g).Links(ctx, id, direction, limit)
			if err != nil {
				return err
			}
			return renderLinks(out)
		},
	}
	list.Flags().StringVar(&listPlayer, "player", "", "player id (defaults to current player)")
	list.Flags().StringVar(&direction, "direction", "out", "out|in")
	list.Flags().IntVar(&limit, "limit", 0, "max rows")

	link.AddCommand(add, list)
	return link
}
