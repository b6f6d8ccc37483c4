package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kpanalytix/kpa-assistant/internal"
	"github.com/kpanalytix/kpa-assistant/internal/chat"
	"github.com/kpanalytix/kpa-assistant/internal/i18n"
)

func (a *app) askCommand() *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question the way the widget would",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No typing indicator on a terminal.
			a.cfg.LocalDelay = 0
			m, err := newManager(cmd.Context(), a.cfg, a.faqFile, a.logger)
			if err != nil {
				return err
			}
			reply, err := ask(cmd, m, i18n.ParseLang(lang), strings.Join(args, " "))
			if err != nil {
				return err
			}
			printReply(cmd.OutOrStdout(), reply)
			return nil
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", "en", "reply language: en or ar")
	return cmd
}

func ask(cmd *cobra.Command, m *chat.Manager, lang internal.Lang, question string) (internal.BotReply, error) {
	sess, err := m.Create(lang)
	if err != nil {
		return internal.BotReply{}, err
	}
	defer m.Delete(sess.ID())
	if err := sess.Open(); err != nil {
		return internal.BotReply{}, err
	}
	return sess.Submit(cmd.Context(), question)
}

func printReply(w io.Writer, reply internal.BotReply) {
	fmt.Fprintln(w, reply.Text)
	if reply.Action != nil {
		label := reply.Action.Label
		if label == "" {
			label = string(reply.Action.Type)
		}
		fmt.Fprintf(w, "\n%s: %s\n", label, reply.Action.Path)
	}
}
