package chat

import (
	"context"
	"time"

	"github.com/kpanalytix/kpa-assistant/internal"
	"github.com/kpanalytix/kpa-assistant/internal/provider"
	"github.com/kpanalytix/kpa-assistant/internal/store"
)

const DefaultRemoteTimeout = 20 * time.Second

// SystemPrompt scopes the hosted model to the company. It is sent first in
// every request and never shown to the user.
const SystemPrompt = `You are KPAnalytix's AI assistant. You ONLY answer questions about KPAnalytix and its services. If asked about anything unrelated, politely redirect to company services.

About KPAnalytix: Premier data analytics and AI consulting firm in Riyadh, Saudi Arabia.
CRN: 1010900500, TRN: 311458122400003

Leadership:
- Dr. Konrad Pesendorfer - Founder & CEO, 25+ years of executive leadership, led Statistics Austria and GASTAT Saudi Arabia
- Dr. Hend Aljobaily - Co-Founder & Chief Data Analytics & AI, Chief Data Scientist

Services: Predictive Analytics, Forecasting, Dashboards, Data Governance, AI Models, Statistical Consulting, KPI Measurement, Policy Design, Impact Assessment, International Economics, Best Practices, Benchmarking

Contact: office@kpanalytix.com, Riyadh, Saudi Arabia

Guidelines:
- Be helpful, professional, concise
- Answer in user's language (Arabic or English)
- For pricing, suggest contacting the team
- Redirect off-topic questions to company services`

// RemoteResolver answers from a hosted chat model. It makes exactly one
// provider call per Resolve and never retries.
type RemoteResolver struct {
	provider     provider.ChatProvider
	systemPrompt string
	timeout      time.Duration
}

func NewRemoteResolver(p provider.ChatProvider, systemPrompt string, timeout time.Duration) *RemoteResolver {
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &RemoteResolver{provider: p, systemPrompt: systemPrompt, timeout: timeout}
}

func (r *RemoteResolver) Model() string { return r.provider.Model() }

// Resolve sends the system prompt followed by the buffered context. On
// success the reply is appended to buf. Every failure, the timeout
// included, is a *provider.RemoteError and leaves buf untouched.
func (r *RemoteResolver) Resolve(ctx context.Context, buf *store.ContextBuffer) (internal.BotReply, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	history := buf.Messages()
	msgs := make([]internal.Message, 0, len(history)+1)
	if r.systemPrompt != "" {
		msgs = append(msgs, internal.Message{Role: internal.RoleSystem, Content: r.systemPrompt})
	}
	msgs = append(msgs, history...)

	text, err := r.provider.Complete(ctx, msgs)
	if err != nil {
		return internal.BotReply{}, provider.AsRemoteError(r.provider.Model(), err)
	}

	buf.Append(internal.Message{Role: internal.RoleAssistant, Content: text, CreatedAt: time.Now()})
	return internal.BotReply{Text: text}, nil
}
