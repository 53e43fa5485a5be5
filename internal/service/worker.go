package service

import (
	"github.com/unclebandit/mailcampaign-backend/internal/queue"
)

// StartDeliverySubscriber wires the simulator to the delivery topic. Every
// delivered job is one attempt for one recipient.
func StartDeliverySubscriber(q queue.Queue, topic string, sim *DeliverySimulator) error {
	if topic == "" {
		topic = queue.TopicCampaignSends
	}
	return q.Subscribe(topic, sim.HandleJob)
}
