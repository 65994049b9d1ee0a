package conf

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"auctionhouse/log"
	"auctionhouse/middleware"
)

// default allocation
var (
	ServerAddr           = ":3000"
	MysqlDsn             = "root:123456@tcp(127.0.0.1:3306)/auction"
	ResetDB              = false
	ChainId        int64 = 1
	ChainUrl             = "" // empty disables chain reconciliation
	AuctionHouse         = "" // auction house contract address
	SnipeWindow    int64 = 120
	SnipeExtension int64 = 120
	MaxExtensions  int64 = 10
	BidRateLimit   int64 = 20
	BidRateWindow  int64 = 60
	SweepInterval  int64 = 300
	AuthTokens           = "devtoken:dev:admin"
)

func init() {
	// read configuration to override default values
	setConf()

	// check configuration
	if SnipeWindow <= 0 || SnipeExtension <= 0 || MaxExtensions <= 0 {
		panic("conf: anti-snipe parameters must be positive")
	}
	if BidRateLimit <= 0 || BidRateWindow <= 0 {
		panic("conf: rate limit parameters must be positive")
	}
	if ChainUrl == "" {
		if network := networks[ChainId]; network != nil {
			ChainUrl = network.Url
			if AuctionHouse == "" {
				AuctionHouse = network.AuctionHouse
			}
		}
	}
}

func setConf() {
	if err := godotenv.Load("auction.env"); err != nil {
		log.Infof("no auction.env file, using environment and defaults: %v", err)
	}

	setString("SERVER_ADDR", &ServerAddr)
	setString("MYSQL_DSN", &MysqlDsn)
	setString("CHAIN_URL", &ChainUrl)
	setString("AUCTION_HOUSE", &AuctionHouse)
	setString("AUTH_TOKENS", &AuthTokens)
	setInt64("CHAIN_ID", &ChainId)
	setInt64("SNIPE_WINDOW", &SnipeWindow)
	setInt64("SNIPE_EXTENSION", &SnipeExtension)
	setInt64("MAX_EXTENSIONS", &MaxExtensions)
	setInt64("BID_RATE_LIMIT", &BidRateLimit)
	setInt64("BID_RATE_WINDOW", &BidRateWindow)
	setInt64("SWEEP_INTERVAL", &SweepInterval)
	if resetDB := os.Getenv("RESET_DB"); resetDB != "" {
		ResetDB = resetDB == "true"
	}
}

func setString(name string, value *string) {
	if v := os.Getenv(name); v != "" {
		*value = v
	}
}

func setInt64(name string, value *int64) {
	if v := os.Getenv(name); v != "" {
		parsed, err := strconv.ParseInt(v, 0, 64)
		if err != nil {
			panic(err)
		}
		*value = parsed
	}
}

// ParseAuthTokens parses AUTH_TOKENS ("token:user:role,...") into the static
// resolver map. Real deployments plug in a session-backed resolver instead.
func ParseAuthTokens() map[string]middleware.Identity {
	tokens := make(map[string]middleware.Identity)
	for _, entry := range strings.Split(AuthTokens, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			continue
		}
		tokens[parts[0]] = middleware.Identity{UserID: parts[1], Role: parts[2]}
	}
	return tokens
}
