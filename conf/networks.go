package conf

type network struct {
	Name         string
	Url          string
	AuctionHouse string
}

const InfuraId = "460f40a260564ac4a4f4b3fffb032dad"

// Known deployments of the auction house contract.
var networks = map[int64]*network{
	1337: {
		Name:         "localhost",
		Url:          "http://127.0.0.1:8545",
		AuctionHouse: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
	},
	1: {
		Name:         "mainnet",
		Url:          "https://mainnet.infura.io/v3/" + InfuraId,
		AuctionHouse: "0x1cF2a2dC8D5d25E689C6eE3bE14c4B05a0f2fB9c",
	},
	5: {
		Name:         "goerli",
		Url:          "https://goerli.infura.io/v3/" + InfuraId,
		AuctionHouse: "0x9aE7aB1bE483A2f902A5cdD1d2b0a86e9e7a0F5c",
	},
	137: {
		Name:         "matic",
		Url:          "https://rpc-mainnet.maticvigil.com",
		AuctionHouse: "0x41b6c1cF4AFBd9cf10DdfE3a40dA4C281d530C4e",
	},
	80001: {
		Name:         "mumbai",
		Url:          "https://rpc-mumbai.maticvigil.com",
		AuctionHouse: "0x41b6c1cF4AFBd9cf10DdfE3a40dA4C281d530C4e",
	},
}
