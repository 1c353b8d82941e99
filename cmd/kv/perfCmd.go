package kv

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/pKV/cmd/util"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for pKV networks",
		Long:    "Runs benchmarks against the network the client node is connected to. Without --username a throwaway account is created.",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the put-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfKeySpread <= 0 || perfNumThreads <= 0 {
		return fmt.Errorf("keys and threads must be positive")
	}

	// writes need an account
	if kvNode.Address() == "" {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		username := "perf-" + uuid.NewString()
		if err := kvNode.SignUp(ctx, username, uuid.NewString()); err != nil {
			return fmt.Errorf("failed to create benchmark account: %w", err)
		}
		fmt.Printf("created benchmark account %s\n", username)
	}
	return nil
}

func run(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for pKV networks")

	// Print configuration
	config := kvNode.Config()
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(config.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("staring tests...")

	ctx := context.Background()

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	putResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("put") {
			return
		}

		// prepare keys
		getKey, _ := getKeys("put")

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if err := kvNode.PutData(ctx, getKey(counter), "test"); err != nil {
					log.Printf("(put) - error putting key: %v\n", err)
				}
				counter++
			}
		})
	})

	results["put"] = putResult
	printResult("put", putResult)

	putLargeValueResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("put-large") {
			return
		}

		// prepare large value
		largeValue := strings.Repeat("x", perfLargeValueSizeKB*1024)

		// prepare keys
		getKey, _ := getKeys("put-large")

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if err := kvNode.PutData(ctx, getKey(counter), largeValue); err != nil {
					log.Printf("(put-large) - error putting key: %v", err)
				}
				counter++
			}
		})
	})

	results["put-large"] = putLargeValueResult
	printResult("put-large", putLargeValueResult)

	getResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("get") {
			return
		}

		// prepare keys
		getKey, iter := getKeys("get")

		// put keys
		iter(func(k string) {
			if err := kvNode.PutData(ctx, k, "test"); err != nil {
				log.Printf("(get) - error putting key: %v\n", err)
			}
		})

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, err := kvNode.GetData(ctx, getKey(counter)); err != nil {
					log.Printf("(get) - error getting key: %v\n", err)
				}
				counter++
			}
		})
	})

	results["get"] = getResult
	printResult("get", getResult)

	queryResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("query") {
			return
		}

		// the keys of the get benchmark are reused
		prefix := fmt.Sprintf("%s-get-", perfKeyPrefix)

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				if _, err := kvNode.QueryKeys(ctx, prefix); err != nil {
					log.Printf("(query) - error querying keys: %v\n", err)
				}
			}
		})
	})

	results["query"] = queryResult
	printResult("query", queryResult)

	counterResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("counter") {
			return
		}

		// prepare keys
		getKey, _ := getKeys("counter")

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, err := kvNode.IncrementCounter(ctx, getKey(counter), 1); err != nil {
					log.Printf("(counter) - error incrementing counter: %v\n", err)
				}
				counter++
			}
		})
	})

	results["counter"] = counterResult
	printResult("counter", counterResult)

	mixedUsageResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("mixed") {
			return
		}

		// prepare keys
		getKey, iter := getKeys("mixed")

		// put keys
		iter(func(k string) {
			if err := kvNode.PutData(ctx, k, "test"); err != nil {
				log.Printf("(mixed) - error putting key: %v\n", err)
			}
		})

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				key := getKey(counter)
				var err error
				switch counter % 3 {
				case 0: // put
					err = kvNode.PutData(ctx, key, "test")
				case 1: // get
					_, err = kvNode.GetData(ctx, key)
				case 2: // query
					_, err = kvNode.QueryKeys(ctx, key)
				}

				if err != nil {
					log.Printf("(mixed) - error performing operation (%d): %v\n", counter%3, err)
				}
				counter++
			}
		})
	})

	results["mixed"] = mixedUsageResult
	printResult("mixed", mixedUsageResult)

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult) error {
	config := kvNode.Config()

	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Bootstrap", "RequestTimeout", "PowDifficulty", "Serializer", "Transport",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strings.Join(config.Bootstrap, ";"),
			config.RequestTimeout.String(),
			strconv.Itoa(config.PowDifficulty),
			config.Serializer,
			config.Transport,
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
