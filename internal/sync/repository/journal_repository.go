package repository

import (
	"context"
	"encoding/json"

	"dm_sync_service/internal/sync/domain"

	"github.com/segmentio/kafka-go"
)

// MessageJournal definition confirmed message journal
// 供下游離線消費（歸檔、分析），與同步核心解耦
type MessageJournal interface {
	Append(ctx context.Context, m domain.DirectMessage) error
}

type kafkaMessageJournal struct {
	writer *kafka.Writer
}

// NewKafkaMessageJournal create a MessageJournal
func NewKafkaMessageJournal(writer *kafka.Writer) MessageJournal {
	return &kafkaMessageJournal{writer: writer}
}

func (j *kafkaMessageJournal) Append(ctx context.Context, m domain.DirectMessage) error {
	value, err := json.Marshal(m)
	if err != nil {
		return err
	}

	// 以會話雙方組 key，同一會話的訊息落在同一 partition 保序
	key := m.SenderID + "|" + m.RecipientID
	if m.RecipientID < m.SenderID {
		key = m.RecipientID + "|" + m.SenderID
	}

	return j.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
}
