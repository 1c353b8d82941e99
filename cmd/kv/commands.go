package kv

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/ValentinKolb/pKV/lib/crdt"
	"github.com/ValentinKolb/pKV/lib/entry"
	"github.com/spf13/cobra"
)

var (
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Writes the value for a key (valid JSON is stored as is, anything else as a string)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			key, value := args[0], parseValue(args[1])
			var err error
			if user, _ := cmd.Flags().GetBool("user"); user {
				err = kvNode.PutUserData(ctx, key, value)
			} else {
				err = kvNode.PutData(ctx, key, value)
			}
			if err != nil {
				return err
			}
			fmt.Println("put successfully")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			key := args[0]
			if address, _ := cmd.Flags().GetString("user"); address != "" {
				key = entry.NamespacedKey(address, key)
			}
			rec, err := kvNode.GetRecord(ctx, key)
			if err != nil {
				return err
			}
			value, err := rec.Value()
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, author=%s, timestamp=%d, value=%s\n", key, rec.Entry.Author, rec.Entry.Timestamp, value)
			return nil
		},
	}
	queryCmd = &cobra.Command{
		Use:   "query [prefix]",
		Short: "Lists all keys of the network starting with prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			keys, err := kvNode.QueryKeys(ctx, prefix)
			if err != nil {
				return err
			}
			for _, key := range keys {
				fmt.Println(key)
			}
			fmt.Printf("found %d keys\n", len(keys))
			return nil
		},
	}
	watchCmd = &cobra.Command{
		Use:   "watch [key]",
		Short: "Prints every change of a key until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handle := kvNode.SubscribeData(args[0], func(key string, rec *entry.Record) {
				value, err := rec.Value()
				if err != nil {
					fmt.Printf("key=%s, error=%v\n", key, err)
					return
				}
				fmt.Printf("key=%s, author=%s, timestamp=%d, value=%s\n", key, rec.Entry.Author, rec.Entry.Timestamp, value)
			})
			defer kvNode.Unsubscribe(handle)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}
	counterCmd = &cobra.Command{
		Use:   "counter [key] [delta]",
		Short: "Adds delta (default 1) to a counter and prints its new value",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			delta := int64(1)
			if len(args) == 2 {
				var err error
				if delta, err = strconv.ParseInt(args[1], 10, 64); err != nil {
					return fmt.Errorf("delta must be a number: %w", err)
				}
			}
			if delta == 0 {
				c, err := kvNode.GetCrdt(ctx, args[0])
				if err != nil {
					return err
				}
				counter, ok := c.(*crdt.Counter)
				if !ok {
					return fmt.Errorf("key %s holds a %s", args[0], c.Type())
				}
				fmt.Printf("key=%s, value=%d\n", args[0], counter.Value())
				return nil
			}
			value, err := kvNode.IncrementCounter(ctx, args[0], delta)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, value=%d\n", args[0], value)
			return nil
		},
	}
	callCmd = &cobra.Command{
		Use:   "call [function] [json-args]",
		Short: "Calls a function registered on the connected peers",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			var fnArgs any
			if len(args) == 2 {
				fnArgs = parseValue(args[1])
			}
			result, err := kvNode.DoFunction(ctx, args[0], fnArgs)
			if err != nil {
				return err
			}
			fmt.Printf("function=%s, result=%s\n", args[0], result)
			return nil
		},
	}
)

func init() {
	putCmd.Flags().Bool("user", false, "Write into the namespace of the logged in user")
	getCmd.Flags().String("user", "", "Read from the namespace of the user with this address")
}

// parseValue keeps valid JSON and wraps everything else as a string
func parseValue(s string) any {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	return s
}
