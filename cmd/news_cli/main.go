package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	newscraping "github.com/tmcferran/rangerider/Internal/news_scraping"
	"github.com/tmcferran/rangerider/Internal/utils/config"
	"github.com/tmcferran/rangerider/Internal/utils/formatting"
)

// Quick pre-market check: pull the latest headlines for the traded symbol
// and print a per-headline and overall sentiment read before the open.
func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../../.env")

	symbol := flag.String("symbol", "", "symbol to scan (defaults to the configured trading symbol)")
	limit := flag.Int("limit", 10, "number of headlines to fetch")
	flag.Parse()

	if *symbol == "" {
		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("Failed to load config: %v\n", err)
			os.Exit(1)
		}
		*symbol = cfg.Symbol
	}

	client := newscraping.NewClient()
	articles, err := client.FetchNews(*symbol, *limit)
	if err != nil {
		fmt.Printf("News fetch failed: %v\n", err)
		os.Exit(1)
	}
	if len(articles) == 0 {
		fmt.Printf("No recent headlines for %s\n", *symbol)
		return
	}

	analyzer := newscraping.NewSentimentAnalyzer()

	fmt.Println(formatting.Separator(80))
	fmt.Printf("HEADLINE SENTIMENT: %s\n", *symbol)
	fmt.Println(formatting.Separator(80))

	for _, article := range articles {
		sent, score := analyzer.Analyze(article.Headline)
		fmt.Printf("\n %s\n", article.Headline)
		fmt.Printf(" %s | %s\n", article.Source, article.PublishedAt.Format("2006-01-02 15:04"))
		fmt.Printf(" Sentiment: %s (Score: %.2f)\n", sent, score)
	}

	overall, avg := analyzer.AnalyzeAll(articles)
	fmt.Println("\n" + formatting.Separator(80))
	fmt.Printf("Overall: %s (%.2f across %d headlines)\n", overall, avg, len(articles))
	fmt.Println(formatting.Separator(80))
}
