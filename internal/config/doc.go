// Package config handles configuration loading for wordchain-gateway.
//
// # Configuration File
//
// The command resolves the path in this order:
//
//  1. --config flag
//  2. WORDCHAIN_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/wordchain/config.yaml (or ~/.config/wordchain/config.yaml)
//
// # Environment Variable Expansion
//
// Values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${WORDCHAIN_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:8080"        # admin API
//
//	database:
//	  path: "./data/wordchain.db"
//	  encryption_key: "${WORDCHAIN_DB_KEY}" # seals stored tokens
//
//	auth:
//	  jwt_secret: "${WORDCHAIN_JWT_SECRET}" # empty disables admin auth
//
//	matrix:
//	  homeserver: "https://matrix.example.org"
//	  encryption:
//	    enabled: false
//	    data_dir: "./data/crypto"
//
//	notify:
//	  access_token: "${WORDCHAIN_NOTIFY_TOKEN}"
//	  room_id: "!ops:example.org"       # empty logs notifications instead
//
//	game:
//	  dictionary: "./words.txt"
//	  patterns_file: ""                 # TOML overrides for message patterns
//	  chats: ["!game:example.org"]      # empty observes every joined room
//	  host_senders: ["@host:example.org"]
//	  require_turn_marker: false
//	  min_length: 3
//	  reply_delay_min: "1.8s"
//	  reply_delay_max: "3.5s"
//	  skip_cooldown: "5s"
//
//	agents:
//	  resume_on_start: true
//	  stop_timeout: "10s"
//	  connect_retries: 3
//	  connect_backoff: "500ms"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Durations use time.ParseDuration syntax.
package config
