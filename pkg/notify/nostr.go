package notify

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"go.uber.org/multierr"
)

// Relay is the subset of *nostr.Relay the notifier needs.
type Relay interface {
	Publish(ctx context.Context, event nostr.Event) error
	Close() error
}

// DialFunc connects to a relay.
type DialFunc func(ctx context.Context, url string) (Relay, error)

func dialRelay(ctx context.Context, url string) (Relay, error) {
	relay, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, err
	}
	return relay, nil
}

// NostrNotifier publishes each announcement as a signed text note (kind 1)
// to every configured relay. Connections are opened per message. The send
// succeeds if at least one relay accepts the note.
type NostrNotifier struct {
	secretKey string
	publicKey string
	relays    []string
	dial      DialFunc
}

// NewNostrNotifier creates a notifier signing with secretKey, given as hex or
// nsec.
func NewNostrNotifier(secretKey string, relays []string) (*NostrNotifier, error) {
	if len(relays) == 0 {
		return nil, errors.New("nostr notifier: at least one relay is required")
	}
	sk, err := decodeSecretKey(secretKey)
	if err != nil {
		return nil, err
	}
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}
	return &NostrNotifier{
		secretKey: sk,
		publicKey: pk,
		relays:    relays,
		dial:      dialRelay,
	}, nil
}

func decodeSecretKey(secretKey string) (string, error) {
	if len(secretKey) == 64 {
		if _, err := hex.DecodeString(secretKey); err != nil {
			return "", errors.New("secret key is not a valid hex private key")
		}
		return secretKey, nil
	}

	prefix, sk, err := nip19.Decode(secretKey)
	if err != nil {
		return "", fmt.Errorf("secret key is invalid: %w", err)
	}
	if prefix != "nsec" {
		return "", errors.New("secret key is not an nsec or valid hex")
	}
	switch v := sk.(type) {
	case string:
		return v, nil
	case []byte:
		return hex.EncodeToString(v), nil
	default:
		return "", errors.New("secret key is an unexpected nsec payload type")
	}
}

func (n *NostrNotifier) Name() string { return "nostr" }

// PublicKey returns the hex public key notes are signed with.
func (n *NostrNotifier) PublicKey() string { return n.publicKey }

func (n *NostrNotifier) Send(ctx context.Context, message string) error {
	event := nostr.Event{
		PubKey:    n.publicKey,
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindTextNote,
		Tags:      nostr.Tags{{"t", "peakwatch"}},
		Content:   message,
	}
	if err := event.Sign(n.secretKey); err != nil {
		return fmt.Errorf("%w: failed to sign note: %w", ErrNotification, err)
	}

	var errs error
	published := 0
	for _, url := range n.relays {
		if err := n.publishTo(ctx, url, event); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", url, err))
			continue
		}
		published++
	}
	if published == 0 {
		return fmt.Errorf("%w: %w", ErrNotification, errs)
	}
	return nil
}

func (n *NostrNotifier) publishTo(ctx context.Context, url string, event nostr.Event) error {
	relay, err := n.dial(ctx, url)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer relay.Close()
	return relay.Publish(ctx, event)
}
