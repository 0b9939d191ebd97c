// Package smtp открывает аутентифицированные STARTTLS-сессии к почтовому серверу.
package smtp

import "io"

// Client подмножество *smtp.Client, которым пользуется рассыльщик.
type Client interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// TransportInterface выдаёт готовые к отправке сессии.
type TransportInterface interface {
	Connect() (Client, error)
	GetSMTPUser() string
}
