package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"yieldguard/internal/alerts"
	"yieldguard/internal/discovery"
	"yieldguard/internal/health"
	"yieldguard/internal/state"
)

const (
	operatorOffsetKey   = "telegram:operator:last_update_id"
	operatorAuditPrefix = "ops:audit:"
)

type operatorMeta struct {
	UpdateID int64
	UserID   int64
	Username string
	ChatID   int64
	Raw      string
}

type operatorAuditEvent struct {
	UpdateID    int64     `json:"update_id"`
	Time        time.Time `json:"time"`
	Action      string    `json:"action"`
	Command     string    `json:"command"`
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username,omitempty"`
	ChatID      int64     `json:"chat_id"`
	MutedBefore bool      `json:"muted_before"`
	MutedAfter  bool      `json:"muted_after"`
}

func (a *App) operatorEnabled() bool {
	return a.cfg != nil && a.cfg.Telegram.OperatorEnabled && a.telegram.Enabled()
}

func (a *App) operatorLoop(ctx context.Context) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(a.cfg.Telegram.ChatID), 10, 64)
	if err != nil {
		a.log.Warn("telegram operator disabled: invalid chat_id", zap.Error(err))
		return
	}
	pollInterval := a.cfg.Telegram.OperatorPollInterval
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	allowedUsers := make(map[int64]struct{}, len(a.cfg.Telegram.OperatorAllowedUserIDs))
	for _, id := range a.cfg.Telegram.OperatorAllowedUserIDs {
		allowedUsers[id] = struct{}{}
	}
	offset := a.loadOperatorOffset(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		updates, err := a.telegram.GetUpdates(ctx, offset, pollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logOperatorError(err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}
		if a.operatorWarned {
			a.log.Info("telegram operator recovered")
			a.operatorWarned = false
		}
		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
				a.saveOperatorOffset(ctx, offset)
			}
			a.handleOperatorUpdate(ctx, upd, chatID, allowedUsers)
		}
	}
}

func (a *App) handleOperatorUpdate(ctx context.Context, upd alerts.Update, chatID int64, allowedUsers map[int64]struct{}) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil || msg.From == nil {
		return
	}
	if msg.Chat.ID != chatID {
		return
	}
	if len(allowedUsers) > 0 {
		if _, ok := allowedUsers[msg.From.ID]; !ok {
			return
		}
	}
	cmd, args, ok := parseOperatorCommand(msg.Text)
	if !ok {
		return
	}
	meta := operatorMeta{
		UpdateID: upd.UpdateID,
		UserID:   msg.From.ID,
		Username: msg.From.Username,
		ChatID:   msg.Chat.ID,
		Raw:      msg.Text,
	}
	resp, err := a.handleOperatorCommand(ctx, cmd, args, meta)
	if err != nil {
		resp = fmt.Sprintf("command failed: %v", err)
	}
	if resp == "" {
		return
	}
	if err := a.telegram.Send(ctx, resp); err != nil {
		a.log.Warn("operator response failed", zap.Error(err))
	}
}

func parseOperatorCommand(text string) (string, []string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return "", nil, false
	}
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return "", nil, false
	}
	cmd := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	// Group chats address commands as /status@botname.
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return cmd, fields[1:], true
}

func (a *App) handleOperatorCommand(ctx context.Context, cmd string, args []string, meta operatorMeta) (string, error) {
	switch cmd {
	case "status":
		return a.operatorStatus(), nil
	case "positions":
		return a.operatorPositions(), nil
	case "pending":
		return a.operatorPending(ctx)
	case "refresh":
		a.monitor.Trigger()
		return "refresh requested", nil
	case "mute", "unmute":
		before := a.isMuted()
		after := a.setMuted(cmd == "mute")
		a.auditOperatorEvent(ctx, operatorAuditEvent{
			UpdateID:    meta.UpdateID,
			Time:        time.Now().UTC(),
			Action:      cmd,
			Command:     meta.Raw,
			UserID:      meta.UserID,
			Username:    meta.Username,
			ChatID:      meta.ChatID,
			MutedBefore: before,
			MutedAfter:  after,
		})
		switch {
		case after && before:
			return "zone alerts already muted", nil
		case after:
			return "zone alerts muted", nil
		case before:
			return "zone alerts unmuted", nil
		}
		return "zone alerts already active", nil
	default:
		return operatorHelpText(), nil
	}
}

func (a *App) operatorStatus() string {
	if a.cfg == nil || a.monitor == nil {
		return "status unavailable"
	}
	last := a.monitor.LastDiscovery()
	discoveryLine := "discovery: not run yet"
	if last.Kind != "" {
		discoveryLine = fmt.Sprintf("discovery: %s via %s (%d positions)", last.Kind, last.Source, len(last.Positions))
		if reason := last.Reason(); reason != "" {
			discoveryLine += ": " + reason
		}
		if last.Action() == discovery.ActionSwitchNetwork {
			discoveryLine += fmt.Sprintf("\naction: switch the RPC to chain %d", a.cfg.Chains.Destination)
		}
	}
	worst := health.ZoneSafe
	snaps := a.monitor.Snapshots()
	for _, snap := range snaps {
		if snap.Position.Active && snap.Zone.Severity() > worst.Severity() {
			worst = snap.Zone
		}
	}
	return strings.Join([]string{
		fmt.Sprintf("owner: %s", a.owner.Hex()),
		fmt.Sprintf("chain: %d", a.cfg.Chains.Destination),
		discoveryLine,
		fmt.Sprintf("tracked: %d", len(snaps)),
		fmt.Sprintf("worst_zone: %s", worst),
		fmt.Sprintf("alerts_muted: %t", a.isMuted()),
		fmt.Sprintf("uptime: %s", time.Since(a.started).Truncate(time.Second)),
	}, "\n")
}

func (a *App) operatorPositions() string {
	snaps := a.monitor.Snapshots()
	if len(snaps) == 0 {
		return "no positions"
	}
	lines := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		pos := snap.Position
		collateral := a.cfg.Assets.Display(a.cfg.Chains.Destination, pos.CollateralAsset)
		borrow := a.cfg.Assets.Display(a.cfg.Chains.Destination, pos.BorrowAsset)
		status := "active"
		if !pos.Active {
			status = "inactive"
		}
		lines = append(lines, fmt.Sprintf("%s %s/%s hf=%s ltv=%s lev=%s %s %s",
			pos.Address.Hex(),
			collateral.Symbol,
			borrow.Symbol,
			health.FormatHealthFactor(pos.HealthFactor),
			health.FormatLTV(pos.CurrentLTV),
			health.FormatLeverage(snap.Leverage),
			snap.Zone,
			status,
		))
	}
	return strings.Join(lines, "\n")
}

func (a *App) operatorPending(ctx context.Context) (string, error) {
	entries, err := state.ListPendingTxs(ctx, a.store)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "no pending transactions", nil
	}
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		line := fmt.Sprintf("%s %s %s", entry.Action, entry.Phase, entry.Hash)
		if link := a.cfg.ExplorerTxURL(entry.ChainID, entry.Hash); link != "" {
			line += " " + link
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

func operatorHelpText() string {
	return strings.Join([]string{
		"commands:",
		"/status - coordinator status",
		"/positions - tracked positions with health",
		"/pending - unconfirmed transactions",
		"/refresh - rerun discovery now",
		"/mute - silence zone alerts",
		"/unmute - resume zone alerts",
	}, "\n")
}

func (a *App) logOperatorError(err error) {
	if a.operatorWarned {
		return
	}
	a.operatorWarned = true
	a.log.Warn("telegram operator failed", zap.Error(err))
}

func (a *App) loadOperatorOffset(ctx context.Context) int64 {
	if a.store == nil {
		return 0
	}
	raw, ok, err := a.store.Get(ctx, operatorOffsetKey)
	if err != nil || !ok {
		return 0
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || val < 0 {
		return 0
	}
	return val
}

func (a *App) saveOperatorOffset(ctx context.Context, offset int64) {
	if a.store == nil {
		return
	}
	_ = a.store.Set(ctx, operatorOffsetKey, strconv.FormatInt(offset, 10))
}

func (a *App) auditOperatorEvent(ctx context.Context, event operatorAuditEvent) {
	if a.store == nil {
		return
	}
	key := fmt.Sprintf("%s%d:%d", operatorAuditPrefix, event.Time.UnixNano(), event.UpdateID)
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	_ = a.store.Set(ctx, key, string(payload))
}
