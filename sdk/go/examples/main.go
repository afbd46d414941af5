package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"OpenMCP-EVM/sdk/go/toolbox"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /balance", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"balance": "10000000000000000000000"})
	})
	mux.HandleFunc("POST /send", func(w http.ResponseWriter, r *http.Request) {
		gas := uint64(21000)
		_ = json.NewEncoder(w).Encode(toolbox.SendResult{TransferID: "transfer-demo", GasUsed: &gas})
	})
	mux.HandleFunc("GET /api/v1/transfers/transfer-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(toolbox.Transfer{
			ID:        "transfer-demo",
			AmountEth: "0.1",
			Simulate:  true,
			State:     "simulated",
			CreatedAt: time.Now().Unix(),
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := toolbox.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	balance, err := client.Balance(ctx, "vitalik.eth")
	if err != nil {
		panic(err)
	}
	fmt.Printf("balance %s wei\n", balance)

	res, err := client.Send(ctx, toolbox.SendRequest{
		From:      "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		To:        "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		AmountEth: "0.1",
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("simulated transfer %s gas=%d\n", res.TransferID, *res.GasUsed)

	detail, err := client.Transfer(ctx, res.TransferID)
	if err != nil {
		panic(err)
	}
	fmt.Printf("journal state %s\n", detail.State)
}
