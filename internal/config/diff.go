package config

import (
	"reflect"
	"sort"
	"strings"

	logx "postbot/pkg/logx"
)

// Summarize lists the sections that differ between two configs and returns
// log fields describing the new values. Secrets are reported only as
// "set" flags.
func Summarize(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	o, n := oldCfg, newCfg
	tr := strings.TrimSpace

	var changed []string
	var fields []logx.Field

	if tr(o.Telegram.Token) != tr(n.Telegram.Token) ||
		tr(o.Telegram.PollTimeout) != tr(n.Telegram.PollTimeout) ||
		tr(o.Telegram.CommandTimeout) != tr(n.Telegram.CommandTimeout) ||
		tr(o.Telegram.GroupLog) != tr(n.Telegram.GroupLog) ||
		!reflect.DeepEqual(o.Telegram.OwnerUserIDs, n.Telegram.OwnerUserIDs) {
		changed = append(changed, "telegram")
		fields = append(fields,
			logx.Bool("telegram.token_changed", tr(o.Telegram.Token) != tr(n.Telegram.Token)),
			logx.String("telegram.poll_timeout", tr(n.Telegram.PollTimeout)),
			logx.String("telegram.command_timeout", tr(n.Telegram.CommandTimeout)),
			logx.Int("telegram.owner_count", len(n.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", tr(n.Telegram.GroupLog) != ""),
		)
	}

	if !reflect.DeepEqual(o.Logging, n.Logging) {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", n.Logging.Level),
			logx.Bool("logging.console", n.Logging.Console),
			logx.Bool("logging.file", n.Logging.File.Enabled),
			logx.Bool("logging.telegram", n.Logging.Telegram.Enabled),
		)
	}

	if o.Scheduler.IsEnabled() != n.Scheduler.IsEnabled() ||
		tr(o.Scheduler.Timezone) != tr(n.Scheduler.Timezone) ||
		tr(o.Scheduler.JobTimeout) != tr(n.Scheduler.JobTimeout) ||
		o.Scheduler.HistorySize != n.Scheduler.HistorySize {
		changed = append(changed, "scheduler")
		fields = append(fields,
			logx.Bool("scheduler.enabled", n.Scheduler.IsEnabled()),
			logx.String("scheduler.timezone", tr(n.Scheduler.Timezone)),
			logx.String("scheduler.job_timeout", tr(n.Scheduler.JobTimeout)),
		)
	}

	if tr(o.Broadcast.Delay) != tr(n.Broadcast.Delay) || tr(o.Broadcast.FooterHandle) != tr(n.Broadcast.FooterHandle) {
		changed = append(changed, "broadcast")
		fields = append(fields,
			logx.String("broadcast.delay", tr(n.Broadcast.Delay)),
			logx.String("broadcast.footer_handle", tr(n.Broadcast.FooterHandle)),
		)
	}

	if tr(o.Storage.Driver) != tr(n.Storage.Driver) ||
		tr(o.Storage.Path) != tr(n.Storage.Path) ||
		tr(o.Storage.BusyTimeout) != tr(n.Storage.BusyTimeout) {
		changed = append(changed, "storage")
		fields = append(fields,
			logx.String("storage.driver", tr(n.Storage.Driver)),
			logx.Bool("storage.path_set", tr(n.Storage.Path) != ""),
		)
	}

	oo, no := o.Ops, n.Ops
	oo.Token, no.Token = "", ""
	if !reflect.DeepEqual(oo, no) || (tr(o.Ops.Token) != "") != (tr(n.Ops.Token) != "") {
		changed = append(changed, "ops")
		fields = append(fields,
			logx.Bool("ops.enabled", n.Ops.Enabled),
			logx.String("ops.addr", tr(n.Ops.Addr)),
			logx.Bool("ops.pprof", n.Ops.Pprof),
			logx.Bool("ops.token_set", tr(n.Ops.Token) != ""),
		)
	}

	sort.Strings(changed)
	return changed, fields
}

// RestartRequired reports sections that only take effect after a restart.
func RestartRequired(changed []string, oldCfg, newCfg *Config) []string {
	var out []string
	for _, c := range changed {
		switch c {
		case "storage":
			out = append(out, c)
		case "telegram":
			if oldCfg != nil && newCfg != nil &&
				(strings.TrimSpace(oldCfg.Telegram.Token) != strings.TrimSpace(newCfg.Telegram.Token) ||
					strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout)) {
				out = append(out, "telegram.token/poll_timeout")
			}
		}
	}
	return out
}
