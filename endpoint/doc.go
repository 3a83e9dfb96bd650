// Package endpoint manages the runtime resources agents depend on: a pool of
// free TCP ports, model-serving subprocesses bound to those ports, and the
// registrations of agents using them.
//
// Agents backed by a hosted model share the "hosted" endpoint and never start
// a process. Agents backed by a local model share one serving process per
// model and host; the process is terminated and its port returned to the pool
// when the last agent using it is cleared.
//
//	m := endpoint.NewManager(func(o *endpoint.Options) { o.Host = "127.0.0.1" })
//	defer m.Close()
//	coder, err := m.CreateAgent(ctx, "coder", "meta-llama/Llama-2-7b-chat-hf", endpoint.AgentOptions{})
package endpoint
