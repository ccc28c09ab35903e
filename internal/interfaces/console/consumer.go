package console

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"rtdrelay/internal/application/port"
)

// Source is the consumer side of the relay queue.
type Source interface {
	Receive(ctx context.Context) (port.Message, error)
}

// Consumer drains the relay queue and prints each snapshot for a human
// reader. Error and status messages go to the structured log instead.
type Consumer struct {
	src Source
}

func NewConsumer(src Source) *Consumer {
	return &Consumer{src: src}
}

func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.src.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		switch msg.Kind {
		case port.KindSnapshot:
			printSnapshot(msg.Snapshot)
		case port.KindError:
			log.Error().Str("relay", msg.Text).Msg("session error")
		case port.KindStatus:
			log.Info().Str("relay", msg.Text).Msg("session status")
		}
	}
}

func printSnapshot(values map[string]float64) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("-- snapshot %s (%d topics)\n", time.Now().Format("15:04:05"), len(keys))
	for _, k := range keys {
		fmt.Printf("%-28s %14.4f\n", k, values[k])
	}
}
