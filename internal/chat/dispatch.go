package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// ParseCommand splits one line into its command alias and the raw parameter
// string. Lines without the marker become the default message command; each
// command owns the tokenization of its parameter string from here on.
func ParseCommand(line string) (alias, param string) {
	if !strings.HasPrefix(line, CommandMarker) {
		line = CommandMarker + DefaultCommand + " " + line
	}
	line = strings.TrimPrefix(line, CommandMarker)
	if space := strings.Index(line, " "); space >= 0 {
		return line[:space], line[space+1:]
	}
	return line, ""
}

// HandleLine runs the full dispatch pipeline for one inbound command line:
// message hooks, alias resolution, rule validation, rate controls, then Run.
// The returned error is meant for the invoking connection only.
func (r *Room) HandleLine(ctx context.Context, line string, c *Connection) error {
	if !strings.HasPrefix(line, CommandMarker) {
		line = CommandMarker + DefaultCommand + " " + line
	}

	// Message hooks may rewrite the line or veto it entirely.
	rewritten, err := r.executeNewMessageHooks(line, c)
	if err != nil {
		return err
	}

	alias, param := ParseCommand(rewritten)
	plugin, found := r.resolveCommand(alias)
	if !found {
		return NotFoundf("unknown command %q", alias)
	}
	runner, ok := plugin.(Runner)
	if !ok {
		return NotFoundf("command %q cannot be invoked", alias)
	}

	session := c.Session()
	if session == nil {
		return Statef("connection has no session")
	}
	if err := r.checkRule(plugin, alias, param, session); err != nil {
		return err
	}

	r.logger.Debug("Dispatching command",
		slog.String("alias", alias),
		slog.String("plugin", plugin.Name()),
		slog.String("identifier", session.Identifier()))
	return runner.Run(ctx, alias, param, c)
}

// executeNewMessageHooks threads the line through every MessageHook in plugin
// order. A hook error aborts dispatch; it is not isolated like lifecycle
// hooks because the hook owns the content pipeline.
func (r *Room) executeNewMessageHooks(line string, c *Connection) (string, error) {
	r.mu.RLock()
	snapshot := make([]Plugin, len(r.plugins))
	copy(snapshot, r.plugins)
	r.mu.RUnlock()
	snapshot = append(snapshot, r.manager.GlobalPlugins()...)

	var err error
	for _, p := range snapshot {
		hook, ok := p.(MessageHook)
		if !ok {
			continue
		}
		line, err = hook.OnNewMessage(line, c)
		if err != nil {
			return "", err
		}
	}
	return line, nil
}

// resolveCommand maps an alias to its owning plugin across the room's
// enabled plugins and the globals.
func (r *Room) resolveCommand(alias string) (Plugin, bool) {
	r.mu.RLock()
	snapshot := make([]Plugin, len(r.plugins))
	copy(snapshot, r.plugins)
	r.mu.RUnlock()
	snapshot = append(snapshot, r.manager.GlobalPlugins()...)

	for _, p := range snapshot {
		if p.Name() == alias {
			return p, true
		}
		for _, a := range p.Aliases() {
			if a == alias {
				return p, true
			}
		}
	}
	return nil, false
}

// checkRule enforces privilege, argument and rate constraints before a
// command may run. Failures short-circuit with no side effect.
func (r *Room) checkRule(plugin Plugin, alias, param string, session *Session) error {
	rule := plugin.Rules()[alias]
	user := session.User()

	minRight := 0
	opOnly := false
	if rule != nil {
		minRight = rule.MinRight
		opOnly = rule.OPOnly
	}
	if opOnly && !r.manager.IsOP(session) {
		return Permissionf("command %q requires operator rights", alias)
	}
	if user.Right < minRight && !r.manager.IsOP(session) {
		return Permissionf("you do not have the right to use %q", alias)
	}

	if rule == nil {
		return nil
	}
	if err := rule.Validate(param); err != nil {
		return err
	}
	return r.limiter.Check(alias, session.Identifier(), rule, time.Now())
}
