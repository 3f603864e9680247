package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"shadowrealms/internal/catalog"
	"shadowrealms/internal/ledger"

	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
	muted       = color.New(color.FgHiBlack)
)

type salesPayload struct {
	Sales []ledger.SaleRecord `json:"sales"`
}

type claimsPayload struct {
	Claims []ledger.ClaimRecord `json:"claims"`
}

type linksPayload struct {
	Links []ledger.Link `json:"links"`
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptConfirm(label string) (bool, error) {
	fmt.Printf("%s [y/N]: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func renderPlayer(p ledger.Identity) {
	accent.Printf("\n== %s ==\n", p.DisplayName)
	fmt.Printf("%-12s %s\n", "id", p.ID)
	if p.Category != "" {
		fmt.Printf("%-12s %s\n", "category", p.Category)
	}
	fmt.Printf("%-12s %s\n", "language", p.Language)
	fmt.Printf("%-12s %s\n", "balance", success.Sprint(comma(p.Balance)))
	fmt.Printf("%-12s %s\n", "experience", comma(p.Experience))
	fmt.Printf("%-12s %d\n", "level", p.Level)
	fmt.Printf("%-12s %s\n", "vitality", vitalBar(p.Vitality))
	fmt.Printf("%-12s %s\n", "stamina", vitalBar(p.Stamina))
	muted.Printf("%-12s %s\n\n", "updated", p.UpdatedAt.Local().Format(time.RFC822))
}

func vitalBar(v int64) string {
	text := comma(v)
	switch {
	case v == 0:
		return danger.Sprint(text)
	case v < 25:
		return warn.Sprint(text)
	default:
		return text
	}
}

func renderSales(raw map[string]any) error {
	out, err := decodeInto[salesPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== PURCHASES ==")
	if len(out.Sales) == 0 {
		printInfo("No purchases yet.")
		return nil
	}
	fmt.Printf("%-20s %-18s %10s %12s\n", "WHEN", "ITEM", "PRICE", "BALANCE")
	for _, s := range out.Sales {
		fmt.Printf("%-20s %-18s %10s %12s\n",
			s.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			truncate(s.ItemCode, 18),
			comma(s.Price),
			comma(s.Balance),
		)
	}
	fmt.Println()
	return nil
}

func renderClaim(c ledger.ClaimRecord) {
	if !c.Owned() {
		printInfo(fmt.Sprintf("%s is unowned.", c.ResourceName))
		return
	}
	fmt.Printf("%s owned by %s since %s\n", accent.Sprint(c.ResourceName), c.OwnerID, c.ClaimedAt.Local().Format(time.RFC822))
}

func renderClaims(raw map[string]any) error {
	out, err := decodeInto[claimsPayload](raw)
	if err != nil {
		return err
	}
	if len(out.Claims) == 0 {
		printInfo("No claims.")
		return nil
	}
	for _, c := range out.Claims {
		renderClaim(c)
	}
	return nil
}

func renderBonds(bonds []ledger.Bond) {
	if len(bonds) == 0 {
		printInfo("No active bonds.")
		return
	}
	fmt.Printf("%-12s %-38s %-10s %s\n", "KIND", "PARTNER", "SINCE", "INITIATOR")
	for _, b := range bonds {
		kind := b.Kind
		if b.Exclusive {
			kind = accent.Sprint(fmt.Sprintf("%-12s", kind))
		} else {
			kind = fmt.Sprintf("%-12s", kind)
		}
		who := "partner"
		if b.InitiatorID == b.PlayerID {
			who = "self"
		}
		fmt.Printf("%s %-38s %-10s %s\n", kind, b.PartnerID, b.CreatedAt.Local().Format("2006-01-02"), who)
	}
}

func renderLinks(raw map[string]any) error {
	out, err := decodeInto[linksPayload](raw)
	if err != nil {
		return err
	}
	if len(out.Links) == 0 {
		printInfo("No links.")
		return nil
	}
	for _, l := range out.Links {
		label := ""
		if l.Label != "" {
			label = muted.Sprintf(" (%s)", truncate(l.Label, 40))
		}
		fmt.Printf("%s -[%s]-> %s%s\n", l.SourceID, accent.Sprint(l.LinkType), l.TargetID, label)
	}
	return nil
}

func renderCatalog(raw map[string]any) error {
	cat, err := decodeInto[catalog.Catalog](raw)
	if err != nil {
		return err
	}
	items := append([]catalog.Item(nil), cat.Items...)
	sort.Slice(items, func(i, j int) bool { return items[i].Price < items[j].Price })

	accent.Println("\n== SHOP ==")
	fmt.Printf("%-16s %-26s %8s\n", "CODE", "ITEM", "PRICE")
	for _, it := range items {
		fmt.Printf("%-16s %-26s %8s\n", it.Code, truncate(it.Name, 26), comma(it.Price))
	}
	accent.Println("\n== BOND KINDS ==")
	for _, k := range cat.BondKinds {
		tag := "open"
		if k.Exclusive {
			tag = "exclusive"
		}
		fmt.Printf("%-12s %-10s %s\n", k.Kind, tag, k.Description)
	}
	if len(cat.LinkTypes) > 0 {
		fmt.Printf("\nlink types: %s\n", strings.Join(cat.LinkTypes, ", "))
	}
	fmt.Println()
	return nil
}

func renderEvent(ev ledger.Event) {
	line := fmt.Sprintf("%s %-18s", muted.Sprint(ev.At.Local().Format("2006-01-02 15:04:05")), accent.Sprint(ev.Kind))
	if ev.PlayerID != "" {
		line += " " + ev.PlayerID
	}
	if ev.Subject != "" {
		line += " " + ev.Subject
	}
	if ev.Amount != 0 {
		line += " " + colorizeDelta(ev.Amount)
	}
	if len(ev.Data) > 0 {
		raw, _ := json.Marshal(ev.Data)
		line += " " + muted.Sprint(string(raw))
	}
	fmt.Println(line)
}

func renderSimpleOK(raw map[string]any, successMessage string) error {
	ok := false
	if v, has := raw["ok"]; has {
		if b, isBool := v.(bool); isBool {
			ok = b
		}
	}
	if ok || successMessage != "" {
		printSuccess(successMessage)
		return nil
	}
	printInfo("Done.")
	return nil
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func int64Field(raw map[string]any, key string) int64 {
	switch v := raw[key].(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

func colorizeDelta(v int64) string {
	text := strconv.FormatInt(v, 10)
	switch {
	case v > 0:
		return success.Sprint("+" + text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func comma(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return sign + s
	}
	var b strings.Builder
	b.WriteString(sign)
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		b.WriteByte(',')
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
