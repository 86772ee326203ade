package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tradedesk/routeopt/core/model"
)

// ResultsPublisher pushes solve outcomes to downstream consumers. The
// latest outcome per product group is retained so late subscribers see
// the current recommendation immediately.
type ResultsPublisher struct {
	c *Client
}

// NewResultsPublisher wraps an established client.
func NewResultsPublisher(c *Client) *ResultsPublisher {
	return &ResultsPublisher{c: c}
}

// Publish sends the outcome to <prefix>/results/<product_group>.
func (p *ResultsPublisher) Publish(_ context.Context, o *model.Outcome) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("%s/results/%s", p.c.cfg.TopicPrefix, o.ProductGroup)
	return p.c.publish(topic, p.c.qos("results"), true, payload)
}

// NarrativeRequester asks the narrative service to explain an outcome.
// Requests carry only the fields the writer needs, not the full record.
type NarrativeRequester struct {
	c *Client
}

// NewNarrativeRequester wraps an established client.
func NewNarrativeRequester(c *Client) *NarrativeRequester {
	return &NarrativeRequester{c: c}
}

type narrativeRequest struct {
	RunID        string                `json:"run_id"`
	ProductGroup string                `json:"product_group"`
	Reason       model.TriggerReason   `json:"reason"`
	Triggers     []model.TriggerDetail `json:"triggers,omitempty"`
	Profit       float64               `json:"profit"`
	Signal       string                `json:"signal,omitempty"`
	RequestedAt  int64                 `json:"requested_at"`
}

// RequestNarrative publishes to <prefix>/narrative/request.
func (n *NarrativeRequester) RequestNarrative(_ context.Context, o *model.Outcome) error {
	req := narrativeRequest{
		RunID:        o.RunID,
		ProductGroup: o.ProductGroup,
		Reason:       o.Reason,
		Triggers:     o.Triggers,
		RequestedAt:  time.Now().UnixMilli(),
	}
	if o.Result != nil {
		req.Profit = o.Result.Profit
	}
	if o.Distribution != nil {
		req.Signal = o.Distribution.Signal.String()
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	topic := n.c.cfg.TopicPrefix + "/narrative/request"
	return n.c.publish(topic, n.c.qos("narrative"), false, payload)
}
