/*
Package dyplo streams image buffers through a reconfigurable hardware
accelerator attached via DMA channels and hands the processed result back
to the caller.

Concept

The hardware side of the pipeline consists of three kinds of resources:

    Channel - exclusive handle to one DMA fifo, either to logic (output)
              or from logic (input);
    Node    - reconfigurable processing unit, programmed with a filter;
    Route   - wiring between channels and nodes.

It implies the following constraints:

    Channels and nodes are exclusive and never shared between pipelines;
    There might be zero or one node in a pipeline;
    Node is enabled only after all routes are wired.

Without a node the output channel is routed straight into the input
channel (loopback). With a node the data flows output → node → input.

Buffers

The input channel owns a BufferQueue: a fixed pool of hardware-backed
blocks. Every block is either armed (owned by hardware, capturing) or
leased (owned by software, readable). Dequeue blocks until the hardware
fills a block and returns a Lease. The lease must be released exactly
once, which hands the block back to hardware:

    lease, err := q.Dequeue()
    if err != nil {
        return err
    }
    defer lease.Release()

Pipeline.ReceiveImage wraps this cycle. The captured block is passed to
the consumer as a View which is valid only for the duration of the
callback. Consumers that need the data afterwards must Clone it.

Execution

Processor is the entry point. It owns at most one pipeline and one node
and exposes two execution modes:

    p := dyplo.NewProcessor(provider, onResult, dyplo.WithEventLoop(loop))

    // blocking: pipeline is created and released within the call
    err := p.ProcessSync(img, "invert")

    // non-blocking: pipeline is kept, result arrives via event loop
    err = p.CreatePipeline("invert")
    err = p.ProcessAsync(img)

Hardware is accessed through the Provider interface. Package hw/sim
provides an in-memory device, package hw/dyplodev talks to the dyplo
kernel driver.
*/
package dyplo
