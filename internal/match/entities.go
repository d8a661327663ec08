package match

// entity is one row of the entity table: every alias collapses to name.
// Aliases must start and end with a word character.
type entity struct {
	name    string
	aliases []string
}

// defaultEntities covers the names prediction markets list most often.
var defaultEntities = []entity{
	// crypto
	{"bitcoin", []string{"bitcoin", "btc"}},
	{"ethereum", []string{"ethereum", "ether", "eth"}},
	{"solana", []string{"solana", "sol"}},
	{"xrp", []string{"xrp", "ripple"}},
	{"bnb", []string{"binance coin", "bnb"}},
	{"dogecoin", []string{"dogecoin", "doge"}},
	{"cardano", []string{"cardano"}},

	// people
	{"trump", []string{"donald j. trump", "donald trump", "trump"}},
	{"biden", []string{"joe biden", "biden"}},
	{"harris", []string{"kamala harris", "kamala", "harris"}},
	{"vance", []string{"j.d. vance", "jd vance", "vance"}},
	{"newsom", []string{"gavin newsom", "newsom"}},
	{"desantis", []string{"ron desantis", "desantis"}},
	{"musk", []string{"elon musk", "musk"}},
	{"putin", []string{"vladimir putin", "putin"}},
	{"zelensky", []string{"volodymyr zelensky", "zelenskyy", "zelensky"}},
	{"powell", []string{"jerome powell", "powell"}},

	// institutions, indices, companies
	{"fed", []string{"federal reserve", "fomc", "fed"}},
	{"sp500", []string{"s&p 500", "s&p500", "sp500", "spx", "s&p"}},
	{"nasdaq", []string{"nasdaq 100", "nasdaq", "ndx"}},
	{"dow", []string{"dow jones", "djia"}},
	{"tesla", []string{"tesla", "tsla"}},
	{"nvidia", []string{"nvidia", "nvda"}},
	{"apple", []string{"apple", "aapl"}},
	{"microsoft", []string{"microsoft", "msft"}},
	{"google", []string{"alphabet", "google", "googl"}},
	{"openai", []string{"openai"}},
	{"gold", []string{"gold"}},
	{"oil", []string{"crude oil", "wti"}},

	// countries
	{"usa", []string{"united states", "usa"}},
	{"uk", []string{"united kingdom", "britain"}},
	{"ukraine", []string{"ukraine"}},
	{"russia", []string{"russia"}},
	{"china", []string{"china"}},
	{"israel", []string{"israel"}},
	{"iran", []string{"iran"}},
	{"brazil", []string{"brazil"}},
	{"argentina", []string{"argentina"}},
	{"france", []string{"france"}},
	{"germany", []string{"germany"}},
	{"england", []string{"england"}},
	{"spain", []string{"spain"}},
	{"portugal", []string{"portugal"}},
	{"italy", []string{"italy"}},
	{"japan", []string{"japan"}},
	{"india", []string{"india"}},
	{"mexico", []string{"mexico"}},
	{"canada", []string{"canada"}},
}
