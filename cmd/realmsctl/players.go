package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	cl "shadowrealms/internal/cli"
	"shadowrealms/internal/ledger"
	"shadowrealms/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// resolvePlayer returns the explicit id when given, else the profile's.
func resolvePlayer(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return ledger.ValidatePlayerID(explicit)
	}
	p, err := cl.LoadProfile()
	if err != nil {
		return "", fmt.Errorf("no player selected (pass --player or run `realmsctl player use`): %w", err)
	}
	return p.PlayerID, nil
}

func newPlayerCmd(g *globals) *cobra.Command {
	player := &cobra.Command{
		Use:     "player",
		Short:   "Identity and balance commands",
		Aliases: []string{"p"},
	}
	player.AddCommand(
		newPlayerRegisterCmd(g),
		newPlayerUseCmd(),
		newPlayerShowCmd(g),
		newPlayerUpdateCmd(g),
		newPlayerAdjustCmd(g),
		newPlayerWagerCmd(g),
		newPlayerPurgeCmd(g),
	)
	return player
}

func newPlayerRegisterCmd(g *globals) *cobra.Command {
	var id, category, language string
	var noUse bool
	cmd := &cobra.Command{
		Use:   "register [display-name]",
		Short: "Register a new player",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			var err error
			if len(args) > 0 {
				name = strings.TrimSpace(args[0])
			} else if name, err = promptRequired("Display name"); err != nil {
				return err
			}
			if id == "" {
				id = uuid.NewString()
			}
			if id, err = ledger.ValidatePlayerID(id); err != nil {
				return err
			}

			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(g).Register(ctx, id, name, category, language)
			if err != nil {
				return err
			}
			p, err := decodeInto[ledger.Identity](out)
			if err != nil {
				return err
			}
			if !noUse {
				if err := cl.SaveProfile(cl.Profile{PlayerID: p.ID, DisplayName: p.DisplayName}); err != nil {
					return err
				}
			}
			printSuccess(fmt.Sprintf("Registered %s.", p.DisplayName))
			renderPlayer(p)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "player id (UUID); generated when empty")
	cmd.Flags().StringVar(&category, "category", "", "player category")
	cmd.Flags().StringVar(&language, "language", "", "preferred language (en|es)")
	cmd.Flags().BoolVar(&noUse, "no-use", false, "do not make this the current player")
	return cmd
}

func newPlayerUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <player-id>",
		Short: "Act as this player by default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ledger.ValidatePlayerID(args[0])
			if err != nil {
				return err
			}
			if err := cl.SaveProfile(cl.Profile{PlayerID: id}); err != nil {
				return err
			}
			printSuccess("Current player set to " + id)
			return nil
		},
	}
}

func newPlayerShowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show [player-id]",
		Short: "Show a player's record",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolvePlayer(firstArg(args))
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(g).Player(ctx, id)
			if err != nil {
				return err
			}
			p, err := decodeInto[ledger.Identity](out)
			if err != nil {
				return err
			}
			renderPlayer(p)
			return nil
		},
	}
}

func newPlayerUpdateCmd(g *globals) *cobra.Command {
	var playerID, name, category, language string
	var experience, level, vitality, stamina int64
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Overwrite profile fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolvePlayer(playerID)
			if err != nil {
				return err
			}
			fields := map[string]any{}
			flags := cmd.Flags()
			if flags.Changed("name") {
				fields["display_name"] = name
			}
			if flags.Changed("category") {
				fields["category"] = category
			}
			if flags.Changed("language") {
				fields["language"] = language
			}
			for flag, v := range map[string]int64{"experience": experience, "level": level, "vitality": vitality, "stamina": stamina} {
				if flags.Changed(flag) {
					fields[flag] = v
				}
			}
			if len(fields) == 0 {
				return fmt.Errorf("nothing to update; pass at least one field flag")
			}

			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(g).UpdatePlayer(ctx, id, fields)
			if err != nil {
				return err
			}
			p, err := decodeInto[ledger.Identity](out)
			if err != nil {
				return err
			}
			printSuccess("Player updated.")
			renderPlayer(p)
			return nil
		},
	}
	cmd.Flags().StringVar(&playerID, "player", "", "player id (defaults to current player)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&language, "language", "", "language (en|es)")
	cmd.Flags().Int64Var(&experience, "experience", 0, "experience")
	cmd.Flags().Int64Var(&level, "level", 1, "level")
	cmd.Flags().Int64Var(&vitality, "vitality", 0, "vitality")
	cmd.Flags().Int64Var(&stamina, "stamina", 0, "stamina")
	return cmd
}

func newPlayerAdjustCmd(g *globals) *cobra.Command {
	var playerID string
	cmd := &cobra.Command{
		Use:   "adjust <field> <delta>",
		Short: "Add a signed delta to balance, experience, level, vitality or stamina",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolvePlayer(playerID)
			if err != nil {
				return err
			}
			field, err := ledger.ParseField(args[0])
			if err != nil {
				return err
			}
			delta, err := strconv.ParseInt(strings.TrimSpace(args[1]), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid delta %q", args[1])
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(g).Adjust(ctx, id, string(field), delta)
			if err != nil {
				return err
			}
			res, err := decodeInto[ledger.AdjustResult](out)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s -> %s (%s)\n", res.Field, comma(res.Previous), comma(res.Value), colorizeDelta(res.Value-res.Previous))
			if res.Clamped {
				printWarn(fmt.Sprintf("Clamped at floor; requested %+d.", delta))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&playerID, "player", "", "player id (defaults to current player)")
	return cmd
}

func newPlayerWagerCmd(g *globals) *cobra.Command {
	var playerID string
	cmd := &cobra.Command{
		Use:   "wager <amount>",
		Short: "Stake gold on an even-odds flip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolvePlayer(playerID)
			if err != nil {
				return err
			}
			amount, err := positiveInt(args[0], "amount")
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(g).Wager(ctx, id, amount)
			if err != nil {
				return err
			}
			res, err := decodeInto[ledger.WagerResult](out)
			if err != nil {
				return err
			}
			if res.Won {
				printSuccess(fmt.Sprintf("Won %s. Balance %s.", comma(res.Amount), comma(res.Balance)))
			} else {
				printError(fmt.Sprintf("Lost %s. Balance %s.", comma(res.Amount), comma(res.Balance)))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&playerID, "player", "", "player id (defaults to current player)")
	return cmd
}

func newPlayerPurgeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <player-id>",
		Short: "Delete a player and everything they own (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ledger.ValidatePlayerID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(g).PurgePlayer(ctx, id)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method: http.MethodDelete,
					Path:   "/v1/admin/players/" + url.PathEscape(id),
					Admin:  true,
				})
			}
			if p, err := cl.LoadProfile(); err == nil && p.PlayerID == id {
				_ = cl.ClearProfile()
			}
			return renderSimpleOK(out, "Purged "+id)
		},
	}
}

func newShopCmd(g *globals) *cobra.Command {
	shop := &cobra.Command{
		Use:   "shop",
		Short: "Item catalog and purchases",
	}
	shop.AddCommand(newShopCatalogCmd(g), newShopBuyCmd(g), newShopHistoryCmd(g))
	return shop
}

func newShopCatalogCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List items and bond kinds",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(g).Catalog(ctx)
			if err != nil {
				return err
			}
			return renderCatalog(out)
		},
	}
}

func newShopBuyCmd(g *globals) *cobra.Command {
	var playerID string
	var price int64
	cmd := &cobra.Command{
		Use:   "buy <item-code>",
		Short: "Buy an item; the catalog price applies unless --price is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolvePlayer(playerID)
			if err != nil {
				return err
			}
			code, err := ledger.NormalizeItemCode(args[0])
			if err != nil {
				return err
			}
			if price < 0 {
				return fmt.Errorf("price must be positive")
			}
			idem := uuid.NewString()

			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(g).Purchase(ctx, id, code, price, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method:         http.MethodPost,
					Path:           "/v1/players/" + url.PathEscape(id) + "/purchases",
					Body:           cl.PurchaseBody(code, price),
					IdempotencyKey: idem,
				})
			}
			sale, err := decodeInto[ledger.SaleRecord](out)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Bought %s for %s. Balance %s.", sale.ItemCode, comma(sale.Price), comma(sale.Balance)))
			return nil
		},
	}
	cmd.Flags().StringVar(&playerID, "player", "", "player id (defaults to current player)")
	cmd.Flags().Int64Var(&price, "price", 0, "explicit price in gold")
	return cmd
}

func newShopHistoryCmd(g *globals) *cobra.Command {
	var playerID string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent purchases",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolvePlayer(playerID)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(g).Sales(ctx, id, limit)
			if err != nil {
				return err
			}
			return renderSales(out)
		},
	}
	cmd.Flags().StringVar(&playerID, "player", "", "player id (defaults to current player)")
	cmd.Flags().IntVar(&limit, "limit", 20, "max rows")
	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func positiveInt(raw, label string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s %q", label, raw)
	}
	return v, nil
}
