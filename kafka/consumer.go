package kafka

import (
	"log"
	"time"

	"github.com/IBM/sarama"
)

type Consumer struct {
	consumer sarama.Consumer
}

func NewConsumer(broker string) *Consumer {
	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true

	var client sarama.Consumer
	var err error
	for i := 1; i <= 10; i++ {
		client, err = sarama.NewConsumer([]string{broker}, config)
		if err == nil {
			log.Println("✅ kafka consumer initialized")
			return &Consumer{consumer: client}
		}
		log.Printf("Waiting for kafka consumer... (%d/10) Error: %v", i, err)
		time.Sleep(5 * time.Second)
	}

	log.Fatalf("❌ failed to start kafka consumer: %v", err)
	return nil
}

// Consume runs handler for every message on the topic.
//
// Job topics are provisioned with a single partition, so partition 0
// is the whole topic and per-key ordering from the producer's hash
// partitioner holds. Scaling out to multiple partitions means moving
// to a consumer group.
func (c *Consumer) Consume(topic string, handler func([]byte)) {
	pc, err := c.consumer.ConsumePartition(topic, 0, sarama.OffsetNewest)
	if err != nil {
		log.Fatalf("❌ failed to consume topic %s: %v", topic, err)
	}

	log.Printf("📡 listening on topic %s ...", topic)

	go func() {
		for {
			select {
			case msg := <-pc.Messages():
				handler(msg.Value)
			case err := <-pc.Errors():
				log.Printf("kafka consumer error: %v", err)
			}
		}
	}()
}
