package email

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog/log"
)

// batchSize is the most emails Resend accepts in one batch call.
const batchSize = 100

// ResendSender sends emails via the Resend API.
type ResendSender struct {
	client  *resend.Client
	from    string
	replyTo string
}

// NewResendSender creates a new ResendSender with the given API key, default
// from address and default reply-to address.
// PRE: apiKey is a valid Resend API key; from is a valid sender address
// POST: Returns a ready-to-use sender
func NewResendSender(apiKey, from, replyTo string) *ResendSender {
	return &ResendSender{
		client:  resend.NewClient(apiKey),
		from:    from,
		replyTo: replyTo,
	}
}

// params converts req to a Resend request, applying the sender defaults.
func (s *ResendSender) params(req SendRequest) *resend.SendEmailRequest {
	p := &resend.SendEmailRequest{
		From:    req.From,
		To:      req.To,
		Subject: req.Subject,
		Html:    req.HTML,
		ReplyTo: req.ReplyTo,
	}
	if p.From == "" {
		p.From = s.from
	}
	if p.ReplyTo == "" {
		p.ReplyTo = s.replyTo
	}
	names := make([]string, 0, len(req.Tags))
	for name := range req.Tags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p.Tags = append(p.Tags, resend.Tag{Name: name, Value: req.Tags[name]})
	}
	return p
}

// Send sends a single email via Resend.
// PRE: req has at least one recipient and a subject
// POST: Email is queued for delivery; returns the Resend message ID
func (s *ResendSender) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	sent, err := s.client.Emails.SendWithContext(ctx, s.params(req))
	if err != nil {
		log.Error().Err(err).Strs("to", req.To).Str("subject", req.Subject).Msg("resend_send_failed")
		return SendResult{}, fmt.Errorf("resend send failed: %w", err)
	}

	log.Info().Str("message_id", sent.Id).Strs("to", req.To).Str("subject", req.Subject).Msg("resend_sent")
	return SendResult{
		MessageID: sent.Id,
		SentAt:    time.Now(),
	}, nil
}

// SendBatch sends multiple emails via Resend's batch API (up to 100 per call).
// PRE: len(reqs) > 0
// POST: All emails are queued; returns results in the same order as requests
func (s *ResendSender) SendBatch(ctx context.Context, reqs []SendRequest) ([]SendResult, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	var allResults []SendResult
	for i := 0; i < len(reqs); i += batchSize {
		chunk := reqs[i:min(i+batchSize, len(reqs))]

		batchParams := make([]*resend.SendEmailRequest, 0, len(chunk))
		for _, req := range chunk {
			batchParams = append(batchParams, s.params(req))
		}

		resp, err := s.client.Batch.SendWithContext(ctx, batchParams)
		if err != nil {
			log.Error().Err(err).Int("batch_size", len(chunk)).Msg("resend_batch_failed")
			return allResults, fmt.Errorf("resend batch send failed: %w", err)
		}

		for _, item := range resp.Data {
			allResults = append(allResults, SendResult{
				MessageID: item.Id,
				SentAt:    time.Now(),
			})
		}

		log.Info().Int("count", len(chunk)).Int("total_sent", len(allResults)).Msg("resend_batch_sent")
	}

	return allResults, nil
}
