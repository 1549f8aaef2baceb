// Package routing mapeia o path de entrada para um backend.
//
// O Router tem duas tabelas, ambas percorridas em ordem de registro: primeiro as
// rotas estáticas (um alvo fixo), depois as balanceadas (RoundRobin). A primeira
// rota cujo prefixo casa vence. O casamento respeita segmentos: "/api/cabs" casa
// "/api/cabs" e "/api/cabs/x", mas não "/api/cabs-balanced".
//
// As tabelas são montadas na inicialização e só lidas depois disso; o único estado
// mutável é o cursor de cada RoundRobin, protegido pelo seu próprio mutex.
package routing
