package internal

import (
	"testing"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults_From_Environ(t *testing.T) {
	req := require.New(t)
	environ := env.EnvSet{
		"JWT_SECRET":      "0123456789abcdef0123456789abcdef",
		"BADGER_FILEPATH": "/tmp/badger",
		"BLUGE_FILEPATH":  "/tmp/bluge",
		"ALLOWED_ORIGINS": "http://localhost:3000, https://chat.example.com",
	}

	var cfg Config
	err := env.Unmarshal(environ, &cfg)
	req.NoError(err)

	req.Equal(8080, cfg.Port)
	req.Equal(time.Hour, cfg.AuthTokenDuration)
	req.Equal(256, cfg.SessionBufferSize)
	req.Equal(5*time.Second, cfg.HandshakeTimeout)
	req.Nil(cfg.LimitMessages)
	req.Equal([]string{"http://localhost:3000", "https://chat.example.com"}, cfg.Origins())
	req.Equal("0.0.0.0:8080", cfg.Address())
	req.NoError(cfg.Validate())
}

func TestConfig_Required(t *testing.T) {
	var cfg Config
	err := env.Unmarshal(env.EnvSet{}, &cfg)
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	req := require.New(t)
	valid := Config{JWTSecret: "0123456789abcdef0123456789abcdef", SessionBufferSize: 1, MaxMessageSize: 1, CharReplacement: "#"}
	req.NoError(valid.Validate())

	short := valid
	short.JWTSecret = "short"
	req.Error(short.Validate())

	noBuffer := valid
	noBuffer.SessionBufferSize = 0
	req.Error(noBuffer.Validate())

	badRune := valid
	badRune.CharReplacement = "**"
	req.Error(badRune.Validate())

	badLimit := valid
	badLimit.LimitMessages = lo.ToPtr(0)
	req.Error(badLimit.Validate())
}

func TestCharacterRune(t *testing.T) {
	req := require.New(t)
	r, err := CharacterRune("█")
	req.NoError(err)
	req.Equal('█', r)

	_, err = CharacterRune("")
	req.Error(err)
}
