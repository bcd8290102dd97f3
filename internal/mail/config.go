package mail

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"medai-auth/internal/config"

	"gopkg.in/yaml.v2"
)

// ServerList is the SMTP relay pool. Mail is spread across servers round-robin.
type ServerList struct {
	Servers []Server `yaml:"servers"`
	From    string   `yaml:"from"`
}

type Server struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Connections        int    `yaml:"connections"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
	Auth               struct {
		Username string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"auth"`
	// SendTimeout bounds both the wait for a pooled connection and idle time, in seconds.
	SendTimeout int `yaml:"sendTimeout"`
}

func (s Server) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s Server) timeout() time.Duration {
	if s.SendTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.SendTimeout) * time.Second
}

var ErrNoServers = errors.New("no smtp servers defined")

// ParseServerList decodes a YAML server list. Unknown keys are rejected.
func ParseServerList(raw []byte) (ServerList, error) {
	var sl ServerList
	if err := yaml.UnmarshalStrict(raw, &sl); err != nil {
		return ServerList{}, fmt.Errorf("parse smtp server list: %w", err)
	}
	return sl, sl.validate()
}

func ReadServerList(fname string) (ServerList, error) {
	raw, err := os.ReadFile(fname)
	if err != nil {
		slog.Error("could not read server config file", slog.String("file", fname), slog.String("error", err.Error()))
		return ServerList{}, err
	}
	return ParseServerList(raw)
}

// ServerListFromConfig builds the relay list from SMTP_CONFIG_FILE when set,
// otherwise from the single-server SMTP_* settings.
func ServerListFromConfig(m config.Mail) (ServerList, error) {
	if m.ConfigFile != "" {
		sl, err := ReadServerList(m.ConfigFile)
		if err != nil {
			return ServerList{}, err
		}
		if sl.From == "" {
			sl.From = m.From
		}
		return sl, sl.validate()
	}

	srv := Server{
		Host:        m.SMTPHost,
		Port:        m.SMTPPort,
		Connections: m.Connections,
		SendTimeout: int(m.Timeout / time.Second),
	}
	srv.Auth.Username = m.SMTPUser
	srv.Auth.Password = m.SMTPPass
	sl := ServerList{Servers: []Server{srv}, From: m.From}
	return sl, sl.validate()
}

func (sl ServerList) validate() error {
	if len(sl.Servers) == 0 {
		return ErrNoServers
	}
	if sl.From == "" {
		return errors.New("smtp sender address (from) is required")
	}
	for i, s := range sl.Servers {
		if s.Host == "" || s.Port <= 0 {
			return fmt.Errorf("smtp server %d: host and port are required", i)
		}
	}
	return nil
}
