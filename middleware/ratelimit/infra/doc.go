// Package infra implementa os contratos de domain.
//
// FixedWindowStore é o padrão do gateway (RATE_WINDOW/RATE_MAX). TokenBucketStore
// usa golang.org/x/time/rate. RedisWindowStore divide a mesma janela entre
// réplicas. MemoryStatsStore e RedisStatsStore contam decisões. ChanPool é o
// semáforo do limite de concorrência.
//
// Os stores em memória limpam janelas vencidas no toque e, com StartJanitor,
// também numa varredura periódica.
package infra
