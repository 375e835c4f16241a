package mail

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"mailroom/models"
)

// A matcher resolves an inbound envelope to the originating message, or to
// nothing. Matchers run in fixed priority order, most reliable envelope
// signal first; the first hit wins.
type matcher struct {
	name  string
	match func(r *Reconciler, env *inboundEnvelope) (*models.EmailMessage, error)
}

var matchers = []matcher{
	{name: "reply_to_token", match: matchReplyToHeader},
	{name: "delivered_to_token", match: matchDeliveredTo},
	{name: "in_reply_to", match: matchInReplyTo},
}

// matchReplyToHeader keys on the reply-to header carrying our generated
// routing address.
func matchReplyToHeader(r *Reconciler, env *inboundEnvelope) (*models.EmailMessage, error) {
	_, addr := splitAddress(env.ReplyTo)
	if !r.isRoutingAddress(addr) {
		return nil, nil
	}
	return r.lookupByRoutingAddress(addr, env.InReplyTo)
}

// matchDeliveredTo covers providers that deliver the routing address as the
// direct recipient instead of via reply-to.
func matchDeliveredTo(r *Reconciler, env *inboundEnvelope) (*models.EmailMessage, error) {
	if !r.isRoutingAddress(env.To) {
		return nil, nil
	}
	return r.lookupByRoutingAddress(env.To, env.InReplyTo)
}

// matchInReplyTo falls back to the bare In-Reply-To header against stored
// message ids.
func matchInReplyTo(r *Reconciler, env *inboundEnvelope) (*models.EmailMessage, error) {
	if env.InReplyTo == "" {
		return nil, nil
	}
	return r.findMessage("message_id = ?", env.InReplyTo)
}

// isRoutingAddress reports whether addr follows the engine's sending-domain
// convention reply+<token>@<domain>.
func (r *Reconciler) isRoutingAddress(addr string) bool {
	return addr != "" &&
		strings.HasPrefix(addr, "reply+") &&
		strings.HasSuffix(addr, "@"+r.sendingDomain)
}

// lookupByRoutingAddress tries the embedded token, the exact routing
// address, then the In-Reply-To header against stored message ids.
func (r *Reconciler) lookupByRoutingAddress(addr, inReplyTo string) (*models.EmailMessage, error) {
	token := extractToken(addr, r.sendingDomain)

	if token != "" {
		if msg, err := r.findMessage("reply_token = ?", token); err != nil {
			return nil, err
		} else if msg != nil {
			return msg, nil
		}
	}
	if msg, err := r.findMessage("reply_to_address = ?", addr); err != nil {
		return nil, err
	} else if msg != nil {
		return msg, nil
	}
	if inReplyTo != "" {
		return r.findMessage("message_id = ?", inReplyTo)
	}
	return nil, nil
}

func (r *Reconciler) findMessage(query string, arg interface{}) (*models.EmailMessage, error) {
	var msg models.EmailMessage
	err := r.db.Where(query, arg).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func extractToken(addr, domain string) string {
	token := strings.TrimPrefix(addr, "reply+")
	token = strings.TrimSuffix(token, fmt.Sprintf("@%s", domain))
	if token == addr {
		return ""
	}
	return token
}
