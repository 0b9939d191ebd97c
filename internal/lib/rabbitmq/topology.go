package rabbitmq

// Топология уведомлений.
const (
	Exchange         = "notifications"
	RoutingKeyAccess = "billing.access"
	QueueAccess      = "notifications.billing.access"

	prefetch = 10
)

// QueueConfig очередь и ключ, которым она привязана к обменнику.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// AccessQueues возвращает очереди, которые слушает рассыльщик уведомлений.
func AccessQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: QueueAccess, RoutingKey: RoutingKeyAccess},
	}
}
